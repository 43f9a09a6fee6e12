package compute

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/slime/internal/kernel"
)

func runFrames(t *testing.T, o *Orchestrator, fc FrameContext, n int) []FrameStats {
	t.Helper()
	out := make([]FrameStats, 0, n)
	for range n {
		stats, err := o.Frame(context.Background(), fc)
		if err != nil {
			t.Fatalf("Frame %d: %v", o.frame, err)
		}
		out = append(out, stats)
	}
	return out
}

func TestDispatchCountEqualsReadyFrames(t *testing.T) {
	gate := newGatedCompiler()
	o, rec := newTestOrchestrator(t, testConfig(), gate.compile)
	fc := testFrameContext()

	// Nothing compiled: no stage dispatches and nothing is submitted.
	for _, s := range runFrames(t, o, fc, 3) {
		if s.Dispatches() != 0 || s.Submission != 0 {
			t.Fatalf("frame %d: %d dispatches, submission %d; want none", s.Frame, s.Dispatches(), s.Submission)
		}
		for k, r := range s.Readiness {
			if r != Loading {
				t.Fatalf("frame %d: %s is %v, want Loading", s.Frame, StageKind(k), r)
			}
		}
	}
	if rec.submits != 0 {
		t.Fatalf("submits = %d before any stage was ready", rec.submits)
	}

	// Fade alone becomes ready.
	gate.open(StageFade)
	waitCompiled(t, o, StageFade)
	for _, s := range runFrames(t, o, fc, 4) {
		if !s.Dispatched[StageFade] || s.Dispatches() != 1 {
			t.Fatalf("frame %d: dispatched %v, want fade only", s.Frame, s.Dispatched)
		}
	}

	gate.open(StageSimulation, StageBlur, StageRecolor)
	waitCompiled(t, o, StageSimulation, StageBlur, StageRecolor)
	for _, s := range runFrames(t, o, fc, 5) {
		if s.Dispatches() != int(StageCount) {
			t.Fatalf("frame %d: dispatched %v, want all", s.Frame, s.Dispatched)
		}
	}

	want := map[StageKind]uint64{
		StageSimulation: 5,
		StageFade:       9,
		StageBlur:       5,
		StageRecolor:    5,
	}
	for kind, n := range want {
		if got := o.Dispatches(kind); got != n {
			t.Errorf("Dispatches(%s) = %d, want %d", kind, got, n)
		}
		if got := len(rec.stageDispatches(kind)); uint64(got) != n {
			t.Errorf("recorded %s dispatches = %d, want %d", kind, got, n)
		}
	}
	if rec.submits != 9 {
		t.Errorf("submits = %d, want 9 (one per frame with a ready stage)", rec.submits)
	}
}

func TestStagesDispatchInFixedOrder(t *testing.T) {
	o, rec := newTestOrchestrator(t, testConfig(), instantCompiler)
	waitCompiled(t, o, stageOrder[:]...)
	runFrames(t, o, testFrameContext(), 3)

	want := []string{"simulation", "fade", "blur", "recolor"}
	if len(rec.dispatches) != 3*len(want) {
		t.Fatalf("recorded %d dispatches, want %d", len(rec.dispatches), 3*len(want))
	}
	for i, d := range rec.dispatches {
		if d.stage != want[i%len(want)] {
			t.Fatalf("dispatch %d = %s, want %s", i, d.stage, want[i%len(want)])
		}
	}

	order := o.Order()
	order[0], order[3] = order[3], order[0]
	if o.Order()[0] != StageSimulation {
		t.Error("mutating the returned order changed the orchestrator")
	}
}

func TestNoExportedMethodAcceptsStageOrder(t *testing.T) {
	kindType := reflect.TypeOf(StageSimulation)
	typ := reflect.TypeOf(&Orchestrator{})
	for i := range typ.NumMethod() {
		m := typ.Method(i)
		for j := 1; j < m.Type.NumIn(); j++ {
			in := m.Type.In(j)
			if (in.Kind() == reflect.Slice || in.Kind() == reflect.Array) && in.Elem() == kindType {
				t.Errorf("%s accepts %s and could reorder stages", m.Name, in)
			}
		}
	}
}

func TestDispatchSizes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		texture DispatchSize
		agents  DispatchSize
	}{
		{"small", Config{Width: 64, Height: 32, Agents: 256}, DispatchSize{8, 4, 1}, DispatchSize{16, 1, 1}},
		{"hd", Config{Width: 1280, Height: 720, Agents: 4096}, DispatchSize{160, 90, 1}, DispatchSize{256, 1, 1}},
		{"default", Config{Width: 2560, Height: 1440, Agents: 1_000_000}, DispatchSize{320, 180, 1}, DispatchSize{62500, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, kind := range []StageKind{StageFade, StageBlur, StageRecolor} {
				got, err := DispatchSizeFor(kind, tt.cfg)
				if err != nil {
					t.Fatalf("DispatchSizeFor(%s): %v", kind, err)
				}
				if got != tt.texture {
					t.Errorf("%s = %v, want %v", kind, got, tt.texture)
				}
			}
			got, err := DispatchSizeFor(StageSimulation, tt.cfg)
			if err != nil {
				t.Fatalf("DispatchSizeFor(simulation): %v", err)
			}
			if got != tt.agents {
				t.Errorf("simulation = %v, want %v", got, tt.agents)
			}
		})
	}
}

func TestRecordedDispatchSizes(t *testing.T) {
	o, rec := newTestOrchestrator(t, testConfig(), instantCompiler)
	waitCompiled(t, o, stageOrder[:]...)
	runFrames(t, o, testFrameContext(), 1)

	want := map[StageKind]DispatchSize{
		StageSimulation: {16, 1, 1},
		StageFade:       {8, 4, 1},
		StageBlur:       {8, 4, 1},
		StageRecolor:    {8, 4, 1},
	}
	for kind, size := range want {
		got := rec.stageDispatches(kind)
		if len(got) != 1 || got[0].size != size {
			t.Errorf("%s dispatches = %v, want one of %v", kind, got, size)
		}
	}
}

func TestInvalidConfigRejectedBeforeGPUWork(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"width not multiple of 8", Config{Width: 100, Height: 64, Agents: 16}},
		{"height not multiple of 8", Config{Width: 64, Height: 60, Agents: 16}},
		{"agents not multiple of 16", Config{Width: 64, Height: 64, Agents: 1000001}},
		{"zero agents", Config{Width: 64, Height: 64, Agents: 0}},
		{"zero size", Config{Width: 0, Height: 64, Agents: 16}},
		{"texture over limit", Config{Width: 16384, Height: 64, Agents: 16}},
		{"too many agent groups", Config{Width: 64, Height: 64, Agents: 16 * 70000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, queue, rec, cleanup := newRecordingDevice(t)
			defer cleanup()

			o, err := NewOrchestrator(device, queue, tt.cfg)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if o != nil {
				t.Fatal("orchestrator returned with an error")
			}
			if len(rec.textures) != 0 || rec.buffers != 0 || rec.submits != 0 {
				t.Errorf("GPU work before rejection: %d textures, %d buffers, %d submits",
					len(rec.textures), rec.buffers, rec.submits)
			}
		})
	}
}

func TestAgentCountMismatch(t *testing.T) {
	device, queue, _, cleanup := newRecordingDevice(t)
	defer cleanup()

	o, err := NewOrchestrator(device, queue, testConfig(), WithAgents(nil))
	if err != nil {
		t.Fatalf("nil agents should fall back to seeding: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = NewOrchestrator(device, queue, testConfig(), WithAgents(make([]kernel.Agent, 3)))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestSharedImagesAreFixedPair(t *testing.T) {
	o, rec := newTestOrchestrator(t, Config{Width: 128, Height: 64, Agents: 32}, instantCompiler)

	if n := o.Images().Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
	if n := len(rec.textures); n != 2 {
		t.Fatalf("created %d textures, want 2", n)
	}
	wantUsage := gputypes.TextureUsageCopyDst | gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding
	for i, desc := range rec.textures {
		if desc.Format != gputypes.TextureFormatRGBA8Unorm {
			t.Errorf("texture %d format = %v", i, desc.Format)
		}
		if desc.Usage != wantUsage {
			t.Errorf("texture %d usage = %v, want %v", i, desc.Usage, wantUsage)
		}
		if desc.Size.Width != 128 || desc.Size.Height != 64 {
			t.Errorf("texture %d size = %dx%d", i, desc.Size.Width, desc.Size.Height)
		}
	}

	if err := o.Resize(128, 64); err != nil {
		t.Errorf("Resize to current size: %v", err)
	}
	if err := o.Resize(256, 64); !errors.Is(err, ErrResizeUnsupported) {
		t.Errorf("Resize err = %v, want ErrResizeUnsupported", err)
	}
	if w, h := o.Images().Size(); w != 128 || h != 64 {
		t.Errorf("size after rejected resize = %dx%d", w, h)
	}
	if n := len(rec.textures); n != 2 {
		t.Errorf("textures after resize = %d, want 2", n)
	}
	if o.Images().Head().Width() != 128 || o.Images().Snapshot().Height() != 64 {
		t.Error("image accessors report wrong size")
	}
}

func TestEndToEndPauseKeepsDispatching(t *testing.T) {
	if testing.Short() {
		t.Skip("seeds one million agents")
	}
	cfg := Config{Width: 2560, Height: 1440, Agents: 1_000_000}
	o, rec := newTestOrchestrator(t, cfg, instantCompiler)
	waitCompiled(t, o, stageOrder[:]...)

	fc := testFrameContext()
	runFrames(t, o, fc, 10)
	fc.Pause = true
	runFrames(t, o, fc, 5)

	sim := rec.stageDispatches(StageSimulation)
	if len(sim) != 15 {
		t.Fatalf("simulation dispatched %d times, want 15", len(sim))
	}
	for i, d := range sim {
		if d.size != (DispatchSize{62500, 1, 1}) {
			t.Fatalf("dispatch %d size = %v", i, d.size)
		}
	}
	for _, kind := range stageOrder {
		if got := o.Dispatches(kind); got != 15 {
			t.Errorf("%s dispatches = %d, want 15", kind, got)
		}
	}

	params, err := DecodeSimulationParams(readUniform(t, o, StageSimulation))
	if err != nil {
		t.Fatal(err)
	}
	if !params.Pause {
		t.Error("last simulation uniform does not carry pause")
	}
}

func TestCompileFailureLeavesStageLoading(t *testing.T) {
	gate := newGatedCompiler()
	errBroken := errors.New("broken kernel")
	gate.fail[StageBlur.String()] = errBroken
	gate.open(stageOrder[:]...)

	o, rec := newTestOrchestrator(t, testConfig(), gate.compile)
	waitCompiled(t, o, stageOrder[:]...)

	for _, s := range runFrames(t, o, testFrameContext(), 4) {
		if s.Readiness[StageBlur] != Loading || s.Dispatched[StageBlur] {
			t.Fatalf("frame %d: blur %v dispatched=%v", s.Frame, s.Readiness[StageBlur], s.Dispatched[StageBlur])
		}
		if s.Dispatches() != 3 {
			t.Fatalf("frame %d: %d dispatches, want 3", s.Frame, s.Dispatches())
		}
	}
	if n := len(rec.stageDispatches(StageBlur)); n != 0 {
		t.Errorf("blur dispatched %d times", n)
	}

	failed := o.Failed()
	if len(failed) != 1 {
		t.Fatalf("Failed() = %v, want only blur", failed)
	}
	if err := failed[StageBlur]; !errors.Is(err, ErrCompileFailed) || !errors.Is(err, errBroken) {
		t.Errorf("blur failure = %v", err)
	}
}

func TestResourceMissingPanics(t *testing.T) {
	_, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrResourceMissing) {
			t.Fatalf("recovered %v, want ErrResourceMissing", r)
		}
	}()
	s := &stage{kind: StageFade}
	_ = s.prepare(queue, testFrameContext(), testConfig())
}

func TestFrameAfterClose(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(), instantCompiler)
	waitCompiled(t, o, stageOrder[:]...)
	runFrames(t, o, testFrameContext(), 2)

	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := o.Frame(context.Background(), testFrameContext()); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame after Close err = %v, want ErrClosed", err)
	}
}

func TestFrameHonorsCancelledContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(), instantCompiler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The noop queue completes immediately, so a cancelled context only
	// matters while waiting; the frame itself still runs.
	if _, err := o.Frame(ctx, testFrameContext()); err != nil {
		t.Errorf("Frame: %v", err)
	}
}

func TestMetricsCountDispatchesAndSkips(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	gate := newGatedCompiler()
	o, _ := newTestOrchestrator(t, testConfig(), gate.compile, WithMetrics(m))

	runFrames(t, o, testFrameContext(), 2)
	gate.open(stageOrder[:]...)
	waitCompiled(t, o, stageOrder[:]...)
	runFrames(t, o, testFrameContext(), 3)

	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("simulation")); got != 3 {
		t.Errorf("simulation dispatches = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.skips.WithLabelValues("recolor")); got != 2 {
		t.Errorf("recolor skips = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.readiness.WithLabelValues("blur")); got != 1 {
		t.Errorf("blur ready gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.frames); got != 5 {
		t.Errorf("frames = %v, want 5", got)
	}
}

func TestStageKindString(t *testing.T) {
	tests := []struct {
		kind StageKind
		want string
	}{
		{StageSimulation, "simulation"},
		{StageFade, "fade"},
		{StageBlur, "blur"},
		{StageRecolor, "recolor"},
		{StageKind(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if Loading.String() != "Loading" || Ready.String() != "Ready" {
		t.Error("readiness names")
	}
}
