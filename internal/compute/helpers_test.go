package compute

import (
	"context"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/slime/internal/pipecache"
)

// createNoopDevice opens the noop HAL backend.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
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
	return openDev.Device, openDev.Queue, cleanup
}

// dispatchRecord is one recorded Dispatch call.
type dispatchRecord struct {
	stage string
	size  DispatchSize
}

// recorder collects GPU calls made through the wrappers below.
type recorder struct {
	mu         sync.Mutex
	dispatches []dispatchRecord
	textures   []hal.TextureDescriptor
	buffers    int
	submits    int
}

func (r *recorder) stageDispatches(stage StageKind) []dispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatchRecord
	for _, d := range r.dispatches {
		if d.stage == stage.String() {
			out = append(out, d)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = nil
}

// recordingDevice wraps a hal.Device and records resource creation and
// compute dispatches.
type recordingDevice struct {
	hal.Device
	rec *recorder
}

func (d *recordingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.rec.mu.Lock()
	d.rec.textures = append(d.rec.textures, *desc)
	d.rec.mu.Unlock()
	return d.Device.CreateTexture(desc)
}

func (d *recordingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.rec.mu.Lock()
	d.rec.buffers++
	d.rec.mu.Unlock()
	return d.Device.CreateBuffer(desc)
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, rec: d.rec}, nil
}

type recordingEncoder struct {
	hal.CommandEncoder
	rec *recorder
}

func (e *recordingEncoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &recordingPass{
		ComputePassEncoder: e.CommandEncoder.BeginComputePass(desc),
		label:              desc.Label,
		rec:                e.rec,
	}
}

type recordingPass struct {
	hal.ComputePassEncoder
	label string
	rec   *recorder
}

func (p *recordingPass) Dispatch(x, y, z uint32) {
	p.rec.mu.Lock()
	p.rec.dispatches = append(p.rec.dispatches, dispatchRecord{
		stage: p.label,
		size:  DispatchSize{X: x, Y: y, Z: z},
	})
	p.rec.mu.Unlock()
	p.ComputePassEncoder.Dispatch(x, y, z)
}

type recordingQueue struct {
	hal.Queue
	rec *recorder
}

func (q *recordingQueue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	q.rec.mu.Lock()
	q.rec.submits++
	q.rec.mu.Unlock()
	return q.Queue.Submit(cbs)
}

// newRecordingDevice returns wrapped noop device and queue.
func newRecordingDevice(t *testing.T) (*recordingDevice, *recordingQueue, *recorder, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	rec := &recorder{}
	return &recordingDevice{Device: device, rec: rec}, &recordingQueue{Queue: queue, rec: rec}, rec, cleanup
}

// instantCompiler skips naga so tests control readiness only through gates.
func instantCompiler(_ context.Context, _, wgsl string) (hal.ShaderSource, error) {
	return hal.ShaderSource{WGSL: wgsl}, nil
}

// gatedCompiler holds each stage's compilation until its gate is opened.
type gatedCompiler struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]error
}

func newGatedCompiler() *gatedCompiler {
	g := &gatedCompiler{gates: make(map[string]chan struct{}), fail: make(map[string]error)}
	for _, k := range stageOrder {
		g.gates[k.String()] = make(chan struct{})
	}
	return g
}

func (g *gatedCompiler) open(kinds ...StageKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range kinds {
		close(g.gates[k.String()])
	}
}

func (g *gatedCompiler) compile(ctx context.Context, label, wgsl string) (hal.ShaderSource, error) {
	g.mu.Lock()
	gate := g.gates[label]
	err := g.fail[label]
	g.mu.Unlock()
	select {
	case <-gate:
	case <-ctx.Done():
		return hal.ShaderSource{}, ctx.Err()
	}
	if err != nil {
		return hal.ShaderSource{}, err
	}
	return hal.ShaderSource{WGSL: wgsl}, nil
}

// testConfig is small enough for fast tests and valid for every stage.
func testConfig() Config {
	return Config{Width: 64, Height: 32, Agents: 256}
}

func testFrameContext() FrameContext {
	return FrameContext{
		Speed:            1,
		SenseAngleOffset: 0.5,
		SenseDistance:    20,
		TurnSpeed:        1,
		TurnRandomness:   0.1,
		FadeRate:         0.15,
		HasTrails:        true,
		BlurRadius:       1,
		Color:            [4]float32{1, 1, 1, 1},
		DeltaTime:        1.0 / 60,
	}
}

func waitCompiled(t *testing.T, o *Orchestrator, kinds ...StageKind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, k := range kinds {
		if err := o.WaitCompiled(ctx, k); err != nil {
			t.Fatalf("WaitCompiled(%s): %v", k, err)
		}
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, compiler pipecache.Compiler, opts ...Option) (*Orchestrator, *recorder) {
	t.Helper()
	device, queue, rec, cleanup := newRecordingDevice(t)
	// One worker per stage so a held gate never blocks another stage's compile.
	cacheOpts := WithCacheOptions(pipecache.WithCompiler(compiler), pipecache.WithWorkers(int(StageCount)))
	opts = append([]Option{cacheOpts}, opts...)
	o, err := NewOrchestrator(device, queue, cfg, opts...)
	if err != nil {
		cleanup()
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(func() {
		if err := o.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		cleanup()
	})
	return o, rec
}

// readUniform copies the current contents of a stage's uniform buffer.
func readUniform(t *testing.T, o *Orchestrator, kind StageKind) []byte {
	t.Helper()
	size := uniformSize(kind)
	buf := o.stages[kind].uniform
	m, err := o.device.MapBuffer(buf, 0, size)
	if err != nil {
		t.Fatalf("MapBuffer(%s): %v", kind, err)
	}
	defer func() { _ = o.device.UnmapBuffer(buf) }()
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	return out
}
