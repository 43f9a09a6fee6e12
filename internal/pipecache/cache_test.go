package pipecache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

const trivialKernel = `
@compute @workgroup_size(1)
fn main() {
}
`

func createNoopDevice(t *testing.T) (hal.Device, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, cleanup
}

// gatedCompiler blocks every compilation until release is closed.
func gatedCompiler(release <-chan struct{}, calls *atomic.Int32) Compiler {
	return func(ctx context.Context, _, _ string) (hal.ShaderSource, error) {
		calls.Add(1)
		select {
		case <-release:
			return hal.ShaderSource{WGSL: trivialKernel}, nil
		case <-ctx.Done():
			return hal.ShaderSource{}, ctx.Err()
		}
	}
}

func waitCompiled(t *testing.T, c *Cache, id ID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx, id); err != nil {
		t.Fatalf("Wait(%d): %v", id, err)
	}
}

func TestPollPendingUntilCompiled(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	release := make(chan struct{})
	var calls atomic.Int32
	c := New(device, WithCompiler(gatedCompiler(release, &calls)))
	defer c.Close()

	id := c.Queue(Request{Label: "fade", Source: trivialKernel})

	for range 3 {
		if got := c.Poll(id); got.State != StatePending {
			t.Fatalf("Poll before release = %v, want pending", got.State)
		}
	}

	close(release)
	waitCompiled(t, c, id)

	got := c.Poll(id)
	if got.State != StateReady {
		t.Fatalf("Poll after compile = %v (%v), want ready", got.State, got.Err)
	}
	if got.Pipeline == nil {
		t.Fatal("ready result has no pipeline")
	}
	if again := c.Poll(id); again.Pipeline != got.Pipeline {
		t.Error("second Poll returned a different pipeline")
	}
}

func TestFailedCompileIsTerminal(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	errBoom := errors.New("boom")
	var calls atomic.Int32
	failing := func(context.Context, string, string) (hal.ShaderSource, error) {
		calls.Add(1)
		return hal.ShaderSource{}, errBoom
	}
	c := New(device, WithCompiler(failing))
	defer c.Close()

	id := c.Queue(Request{Label: "blur", Source: "broken"})
	waitCompiled(t, c, id)

	for i := range 5 {
		got := c.Poll(id)
		if got.State != StateFailed {
			t.Fatalf("Poll %d = %v, want failed", i, got.State)
		}
		if !errors.Is(got.Err, errBoom) {
			t.Fatalf("Poll %d err = %v, want %v", i, got.Err, errBoom)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compiler called %d times, want 1 (no retry)", n)
	}
}

func TestIdenticalSourceCompiledOnce(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	release := make(chan struct{})
	close(release)
	var calls atomic.Int32
	c := New(device, WithCompiler(gatedCompiler(release, &calls)))
	defer c.Close()

	first := c.Queue(Request{Label: "a", Source: trivialKernel})
	waitCompiled(t, c, first)
	second := c.Queue(Request{Label: "b", Source: trivialKernel, EntryPoint: "main"})

	if got := c.Poll(second); got.State != StateReady {
		t.Fatalf("reused source Poll = %v, want ready", got.State)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compiler called %d times, want 1", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestWorkersBoundConcurrency(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	var active, peak atomic.Int32
	slow := func(context.Context, string, string) (hal.ShaderSource, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return hal.ShaderSource{WGSL: trivialKernel}, nil
	}
	c := New(device, WithCompiler(slow), WithWorkers(1))
	defer c.Close()

	ids := make([]ID, 4)
	for i := range ids {
		ids[i] = c.Queue(Request{Label: fmt.Sprint(i), Source: fmt.Sprintf("// %d\n%s", i, trivialKernel)})
	}
	for _, id := range ids {
		waitCompiled(t, c, id)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent compilations = %d, want 1", p)
	}
}

func TestRequestsReadyIndependently(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	const n = 4
	gates := make(map[string]chan struct{}, n)
	for i := range n {
		gates[fmt.Sprint(i)] = make(chan struct{})
	}
	held := func(ctx context.Context, label, wgsl string) (hal.ShaderSource, error) {
		select {
		case <-gates[label]:
			return hal.ShaderSource{WGSL: wgsl}, nil
		case <-ctx.Done():
			return hal.ShaderSource{}, ctx.Err()
		}
	}
	c := New(device, WithCompiler(held), WithWorkers(n))
	defer c.Close()

	ids := make([]ID, n)
	for i := range ids {
		ids[i] = c.Queue(Request{Label: fmt.Sprint(i), Source: fmt.Sprintf("// %d\n%s", i, trivialKernel)})
	}

	// Release in reverse so every gate but the last is opened while
	// earlier requests still hold theirs.
	for i := n - 1; i >= 0; i-- {
		close(gates[fmt.Sprint(i)])
		waitCompiled(t, c, ids[i])
		if got := c.Poll(ids[i]); got.State != StateReady {
			t.Fatalf("request %d = %v after its gate opened, want ready", i, got.State)
		}
		for j := range i {
			if got := c.Poll(ids[j]); got.State != StatePending {
				t.Fatalf("request %d = %v while its gate is held, want pending", j, got.State)
			}
		}
	}
}

func TestPollUnknownRequest(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	c := New(device)
	defer c.Close()

	if got := c.Poll(7); got.State != StateFailed || got.Err == nil {
		t.Errorf("Poll(7) = %+v, want failed with error", got)
	}
	if err := c.Wait(context.Background(), -1); err == nil {
		t.Error("Wait(-1) returned nil")
	}
}

func TestQueueAfterClose(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	c := New(device)
	c.Close()
	c.Close()

	id := c.Queue(Request{Label: "late", Source: trivialKernel})
	got := c.Poll(id)
	if got.State != StateFailed || !errors.Is(got.Err, ErrClosed) {
		t.Errorf("Poll after Close = %+v, want failed with ErrClosed", got)
	}
}

func TestQueueConcurrentWithClose(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	var closed atomic.Bool
	var late atomic.Int32
	compiler := func(ctx context.Context, _, wgsl string) (hal.ShaderSource, error) {
		if closed.Load() {
			late.Add(1)
		}
		<-ctx.Done()
		return hal.ShaderSource{}, ctx.Err()
	}
	c := New(device, WithCompiler(compiler), WithWorkers(2))

	const queuers = 8
	ids := make(chan ID, queuers*4)
	var wg sync.WaitGroup
	for g := range queuers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 4 {
				ids <- c.Queue(Request{Label: "k", Source: fmt.Sprintf("// %d %d\n%s", g, i, trivialKernel)})
			}
		}()
	}
	c.Close()
	closed.Store(true)
	wg.Wait()
	close(ids)

	for id := range ids {
		waitCompiled(t, c, id)
		if got := c.Poll(id); got.State != StateFailed {
			t.Errorf("request %d = %v after Close, want failed", id, got.State)
		}
	}
	if n := late.Load(); n != 0 {
		t.Errorf("%d compilations started after Close returned", n)
	}
}

func TestSPIRVWords(t *testing.T) {
	valid := make([]byte, 8)
	binary.LittleEndian.PutUint32(valid, spirvMagic)
	binary.LittleEndian.PutUint32(valid[4:], 0x00010300)

	tests := []struct {
		name    string
		in      []byte
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", nil, true},
		{"unaligned", valid[:6], true},
		{"bad magic", make([]byte, 8), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := spirvWords(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && words[0] != spirvMagic {
				t.Errorf("words[0] = %#x", words[0])
			}
		})
	}
}

func TestSPIRVCompilerEmitsModule(t *testing.T) {
	src, err := DefaultCompiler()(context.Background(), "trivial", trivialKernel)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(src.SPIRV) == 0 || src.SPIRV[0] != spirvMagic {
		t.Fatalf("SPIR-V output missing magic: %v", src.SPIRV[:min(len(src.SPIRV), 1)])
	}
}

func TestWGSLCompilerRejectsInvalidSource(t *testing.T) {
	_, err := WGSLCompiler()(context.Background(), "broken", "fn main( {")
	if err == nil {
		t.Fatal("invalid WGSL accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := WGSLCompiler()(ctx, "cancelled", trivialKernel); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled compile err = %v, want context.Canceled", err)
	}
}
