package main

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	_ "github.com/gogpu/wgpu/hal/noop"
)

// backendNames maps CLI names to HAL variants, most capable first.
var backendNames = []struct {
	name    string
	variant gputypes.Backend
}{
	{"vulkan", gputypes.BackendVulkan},
	{"metal", gputypes.BackendMetal},
	{"dx12", gputypes.BackendDX12},
	{"gles", gputypes.BackendGL},
	{"noop", gputypes.BackendEmpty},
}

// newBackendRegistry registers every backend that can be created on this
// machine.
func newBackendRegistry() *gpucontext.Registry[hal.Backend] {
	priority := make([]string, len(backendNames))
	for i, b := range backendNames {
		priority[i] = b.name
	}
	reg := gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(priority...))

	for _, b := range backendNames {
		if _, err := hal.ProbeBackend(b.variant); err != nil {
			continue
		}
		variant := b.variant
		reg.Register(b.name, func() hal.Backend {
			backend, _ := hal.GetBackend(variant)
			return backend
		})
	}
	return reg
}

// selectBackend returns the named backend, or the best available one for
// "auto".
func selectBackend(reg *gpucontext.Registry[hal.Backend], name string) (string, hal.Backend, error) {
	if name == "auto" {
		name = reg.BestName()
	}
	if name == "" || !reg.Has(name) {
		avail := reg.Available()
		sort.Strings(avail)
		return "", nil, fmt.Errorf("backend %q not available (have %v): %w", name, avail, hal.ErrBackendNotFound)
	}
	backend := reg.Get(name)
	if backend == nil {
		return "", nil, fmt.Errorf("backend %q: %w", name, hal.ErrBackendNotFound)
	}
	return name, backend, nil
}

// gpu is an opened device on one adapter.
type gpu struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
	limits   gputypes.Limits
}

func openGPU(backend hal.Backend) (*gpu, error) {
	instance, err := backend.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create %s instance: %w", backend.Variant(), err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no adapters", backend.Variant())
	}
	exposed := adapters[0]
	limits := gputypes.DefaultLimits()
	open, err := exposed.Adapter.Open(0, limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open %s: %w", exposed.Info.Name, err)
	}
	return &gpu{
		instance: instance,
		device:   open.Device,
		queue:    open.Queue,
		adapter:  exposed.Info.Name,
		limits:   limits,
	}, nil
}

func (g *gpu) close() {
	g.device.Destroy()
	g.instance.Destroy()
}
