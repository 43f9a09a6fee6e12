// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package slime

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/compute"
	"github.com/gogpu/slime/internal/pipecache"
)

// Config is the startup configuration: image size, agent count and the
// device limits they are checked against. It cannot change after New.
type Config = compute.Config

// FrameStats reports what one frame dispatched.
type FrameStats = compute.FrameStats

// StageKind identifies a compute stage.
type StageKind = compute.StageKind

// Readiness is the compile state of a stage.
type Readiness = compute.Readiness

// DispatchSize is a workgroup count.
type DispatchSize = compute.DispatchSize

// The four stages in dispatch order.
const (
	StageSimulation = compute.StageSimulation
	StageFade       = compute.StageFade
	StageBlur       = compute.StageBlur
	StageRecolor    = compute.StageRecolor
	StageCount      = compute.StageCount
)

// Stage readiness.
const (
	Loading = compute.Loading
	Ready   = compute.Ready
)

// Simulation is a running slime simulation on one device.
type Simulation struct {
	orc      *compute.Orchestrator
	output   Texture
	snapshot Texture
}

// New validates cfg, allocates the shared images and agent buffer on
// device, and starts compiling the kernels in the background.
func New(device hal.Device, queue hal.Queue, cfg Config, opts ...Option) (*Simulation, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cacheOpts []pipecache.Option
	if o.compiler != nil {
		cacheOpts = append(cacheOpts, pipecache.WithCompiler(o.compiler))
	}
	if o.workers > 0 {
		cacheOpts = append(cacheOpts, pipecache.WithWorkers(o.workers))
	}
	computeOpts := []compute.Option{compute.WithCacheOptions(cacheOpts...)}
	if o.seeded {
		computeOpts = append(computeOpts, compute.WithSeed(o.seed))
	}
	if o.registry != nil {
		computeOpts = append(computeOpts, compute.WithMetrics(compute.NewMetrics(o.registry)))
	}

	orc, err := compute.NewOrchestrator(device, queue, cfg, computeOpts...)
	if err != nil {
		return nil, fmt.Errorf("slime: %w", err)
	}
	images := orc.Images()
	return &Simulation{
		orc:      orc,
		output:   Texture{img: images.Head()},
		snapshot: Texture{img: images.Snapshot()},
	}, nil
}

// halProvider is implemented by hosts that expose their HAL objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider runs the simulation on a host's device. The provider must
// expose HAL types, either through HalDevice/HalQueue or directly from
// Device and Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config, opts ...Option) (*Simulation, error) {
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	slogger().Info("slime: using host device", "adapter", info.Name, "type", info.Type.String())
	return New(device, queue, cfg, opts...)
}

func halFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	if provider == nil {
		return nil, nil, ErrNoDevice
	}
	var rawDevice, rawQueue any
	if hp, ok := provider.(halProvider); ok {
		rawDevice, rawQueue = hp.HalDevice(), hp.HalQueue()
	} else {
		rawDevice, rawQueue = provider.Device(), provider.Queue()
	}
	device, ok := rawDevice.(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: device is %T", ErrNoDevice, rawDevice)
	}
	queue, ok := rawQueue.(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: queue is %T", ErrNoDevice, rawQueue)
	}
	return device, queue, nil
}

// Frame runs every ready stage once and submits the frame.
func (s *Simulation) Frame(ctx context.Context, fc FrameContext) (FrameStats, error) {
	return s.orc.Frame(ctx, fc.toCompute())
}

// Output returns the accumulated trail image to present.
func (s *Simulation) Output() *Texture { return &s.output }

// Snapshot returns the previous trail snapshot image.
func (s *Simulation) Snapshot() *Texture { return &s.snapshot }

// Config returns the startup configuration.
func (s *Simulation) Config() Config { return s.orc.Config() }

// Order returns the fixed stage order.
func (s *Simulation) Order() [StageCount]StageKind { return s.orc.Order() }

// DispatchSize returns the workgroup count used for kind.
func (s *Simulation) DispatchSize(kind StageKind) DispatchSize { return s.orc.DispatchSize(kind) }

// Readiness returns the compile state of kind as of the last frame.
func (s *Simulation) Readiness(kind StageKind) Readiness { return s.orc.Readiness(kind) }

// Dispatches returns how many frames dispatched kind.
func (s *Simulation) Dispatches(kind StageKind) uint64 { return s.orc.Dispatches(kind) }

// Failed returns the stages whose kernels failed to compile. They never run.
func (s *Simulation) Failed() map[StageKind]error { return s.orc.Failed() }

// WaitCompiled blocks until every kernel has finished compiling. Stages
// become Ready on the following frame.
func (s *Simulation) WaitCompiled(ctx context.Context) error { return s.orc.WaitAllCompiled(ctx) }

// Resize fails with ErrResizeUnsupported unless the size is unchanged.
func (s *Simulation) Resize(width, height uint32) error { return s.orc.Resize(width, height) }

// Close waits for the GPU and releases all resources.
func (s *Simulation) Close() error { return s.orc.Close() }
