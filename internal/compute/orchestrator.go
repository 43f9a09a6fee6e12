// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/kernel"
	"github.com/gogpu/slime/internal/pipecache"
)

const (
	// frameTimeout bounds the wait for the previous frame's submission.
	frameTimeout = 5 * time.Second

	// retirePollInterval is the sleep between completion polls.
	retirePollInterval = 100 * time.Microsecond
)

// FrameStats describes what one call to Frame did.
type FrameStats struct {
	// Frame is the 1-based frame number.
	Frame uint64

	// Readiness is each stage's state after this frame's poll.
	Readiness [StageCount]Readiness

	// Dispatched reports which stages were recorded this frame.
	Dispatched [StageCount]bool

	// Submission is the queue submission index, zero when nothing was
	// submitted because no stage was ready.
	Submission uint64
}

// Dispatches returns the number of stages dispatched this frame.
func (s FrameStats) Dispatches() int {
	n := 0
	for _, d := range s.Dispatched {
		if d {
			n++
		}
	}
	return n
}

// frameResources holds objects the GPU may still use until the frame's
// submission completes.
type frameResources struct {
	index      uint64
	cmdBuf     hal.CommandBuffer
	bindGroups []hal.BindGroup
}

// Orchestrator owns the shared images and the four stages and records one
// compute submission per frame.
type Orchestrator struct {
	device  hal.Device
	queue   hal.Queue
	cfg     Config
	images  *ImagePair
	stages  [StageCount]*stage
	sizes   [StageCount]DispatchSize
	encoder hal.CommandEncoder

	cache     *pipecache.Cache
	ownsCache bool
	metrics   *Metrics

	inflight *frameResources
	frame    uint64
	closed   bool
}

// NewOrchestrator validates cfg, allocates the shared images and stage
// resources, and queues every kernel for compilation. Configuration errors
// are reported before anything is created on the device.
func NewOrchestrator(device hal.Device, queue hal.Queue, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if device == nil || queue == nil {
		return nil, fmt.Errorf("compute: device and queue are required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.agents != nil && len(o.agents) != int(cfg.Agents) {
		return nil, fmt.Errorf("%w: %d agents supplied for a population of %d",
			ErrConfiguration, len(o.agents), cfg.Agents)
	}

	orc := &Orchestrator{
		device:  device,
		queue:   queue,
		cfg:     cfg,
		cache:   o.cache,
		metrics: o.metrics,
	}
	if orc.cache == nil {
		orc.cache = pipecache.New(device, o.cacheOps...)
		orc.ownsCache = true
	}

	if err := orc.init(o); err != nil {
		orc.release()
		return nil, err
	}

	slogger().Info("compute: orchestrator initialized",
		"width", cfg.Width,
		"height", cfg.Height,
		"agents", cfg.Agents,
		"stages", int(StageCount))
	return orc, nil
}

func (o *Orchestrator) init(opts options) error {
	images, err := newImagePair(o.device, o.cfg.Width, o.cfg.Height)
	if err != nil {
		return err
	}
	o.images = images

	agents := opts.agents
	if agents == nil {
		rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
		agents = kernel.SeedAgents(int(o.cfg.Agents), o.cfg.Width, o.cfg.Height, rng)
	}
	agentData := kernel.EncodeAgents(agents)

	for _, kind := range stageOrder {
		s := &stage{kind: kind}
		o.stages[kind] = s
		var data []byte
		if kind == StageSimulation {
			data = agentData
		}
		if err := s.initResources(o.device, o.queue, data); err != nil {
			return err
		}
		o.sizes[kind] = stageDispatchSize(kind, o.cfg)
		s.compile = o.cache.Queue(pipecache.Request{
			Label:      kind.String(),
			Source:     stageSource(kind),
			EntryPoint: entryPoint,
			Layout:     s.pipelineLayout,
		})
		o.metrics.setReadiness(kind, Loading)
	}

	encoder, err := o.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "slime_frame"})
	if err != nil {
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	o.encoder = encoder
	return nil
}

// Config returns the startup configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Images returns the shared image pair.
func (o *Orchestrator) Images() *ImagePair { return o.images }

// Order returns the dispatch order. The returned array is a copy.
func (o *Orchestrator) Order() [StageCount]StageKind { return stageOrder }

// DispatchSize returns the precomputed workgroup count of kind.
func (o *Orchestrator) DispatchSize(kind StageKind) DispatchSize { return o.sizes[kind] }

// Readiness returns the last polled state of kind.
func (o *Orchestrator) Readiness(kind StageKind) Readiness { return o.stages[kind].readiness }

// Dispatches returns how many times kind has been dispatched.
func (o *Orchestrator) Dispatches(kind StageKind) uint64 { return o.stages[kind].dispatches }

// Failed returns the compile error of every stage whose pipeline will
// never become available.
func (o *Orchestrator) Failed() map[StageKind]error {
	var out map[StageKind]error
	for _, s := range o.stages {
		if s.failed == nil {
			continue
		}
		if out == nil {
			out = make(map[StageKind]error)
		}
		out[s.kind] = s.failed
	}
	return out
}

// WaitCompiled blocks until compilation of kind has finished, successfully
// or not. The stage becomes Ready on the next Frame.
func (o *Orchestrator) WaitCompiled(ctx context.Context, kind StageKind) error {
	return o.cache.Wait(ctx, o.stages[kind].compile)
}

// WaitAllCompiled blocks until every stage has finished compiling.
func (o *Orchestrator) WaitAllCompiled(ctx context.Context) error {
	for _, kind := range stageOrder {
		if err := o.WaitCompiled(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// Resize always fails for a size other than the current one.
func (o *Orchestrator) Resize(width, height uint32) error {
	return o.images.Resize(width, height)
}

// poll advances readiness. Loading -> Ready is the only transition.
func (o *Orchestrator) poll() {
	for _, s := range o.stages {
		if s.readiness == Ready || s.failed != nil {
			continue
		}
		res := o.cache.Poll(s.compile)
		switch res.State {
		case pipecache.StateReady:
			s.pipeline = res.Pipeline
			s.readiness = Ready
			o.metrics.setReadiness(s.kind, Ready)
			slogger().Info("compute: stage ready", "stage", s.kind.String(), "frame", o.frame)
		case pipecache.StateFailed:
			s.failed = fmt.Errorf("%w: %s: %w", ErrCompileFailed, s.kind, res.Err)
			o.metrics.setFailed(s.kind)
			slogger().Error("compute: stage will not run",
				"stage", s.kind.String(),
				"err", res.Err)
		case pipecache.StatePending:
		}
	}
}

// retire waits for the previous submission and releases its resources.
func (o *Orchestrator) retire(ctx context.Context) error {
	res := o.inflight
	if res == nil {
		return nil
	}
	deadline := time.Now().Add(frameTimeout)
	for o.queue.PollCompleted() < res.index {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("compute: submission %d: %w", res.index, hal.ErrTimeout)
		}
		time.Sleep(retirePollInterval)
	}
	o.releaseFrame(res)
	o.inflight = nil
	return nil
}

func (o *Orchestrator) releaseFrame(res *frameResources) {
	if res.cmdBuf != nil {
		o.encoder.ResetAll([]hal.CommandBuffer{res.cmdBuf})
	}
	for _, bg := range res.bindGroups {
		o.device.DestroyBindGroup(bg)
	}
}

// Frame prepares, binds and dispatches every Ready stage in order, then
// submits once. Loading stages are skipped without error.
func (o *Orchestrator) Frame(ctx context.Context, fc FrameContext) (FrameStats, error) {
	if o.closed {
		return FrameStats{}, ErrClosed
	}
	start := time.Now()
	if err := o.retire(ctx); err != nil {
		return FrameStats{}, err
	}

	o.frame++
	stats := FrameStats{Frame: o.frame}

	o.poll()
	for _, kind := range stageOrder {
		s := o.stages[kind]
		s.bindGroup = nil
		stats.Readiness[kind] = s.readiness
		if err := s.prepare(o.queue, fc, o.cfg); err != nil {
			return stats, err
		}
	}

	res, err := o.encode(&stats)
	if err != nil {
		return stats, err
	}
	if res != nil {
		idx, err := o.queue.Submit([]hal.CommandBuffer{res.cmdBuf})
		if err != nil {
			o.releaseFrame(res)
			return stats, fmt.Errorf("compute: submit frame %d: %w", o.frame, err)
		}
		res.index = idx
		o.inflight = res
		stats.Submission = idx
	}

	for _, kind := range stageOrder {
		o.metrics.observeStage(kind, stats.Dispatched[kind])
	}
	o.metrics.observeFrame(time.Since(start))
	return stats, nil
}

// encode records one compute pass per Ready stage. It returns nil when no
// stage is ready.
func (o *Orchestrator) encode(stats *FrameStats) (*frameResources, error) {
	ready := false
	for _, s := range o.stages {
		ready = ready || s.readiness == Ready
	}
	if !ready {
		return nil, nil
	}

	if err := o.encoder.BeginEncoding("slime_frame"); err != nil {
		return nil, fmt.Errorf("compute: begin encoding: %w", err)
	}

	res := &frameResources{}
	for _, kind := range stageOrder {
		s := o.stages[kind]
		if s.readiness != Ready {
			continue
		}
		bg, err := s.bind(o.device, o.images)
		if err != nil {
			o.encoder.DiscardEncoding()
			o.releaseFrame(res)
			return nil, err
		}
		res.bindGroups = append(res.bindGroups, bg)

		size := o.sizes[kind]
		pass := o.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: kind.String()})
		stats.Dispatched[kind] = s.run(pass, size)
		pass.End()

		slogger().Debug("compute: dispatched stage",
			"stage", kind.String(),
			"workgroups", size.String(),
			"frame", o.frame)
	}

	cmdBuf, err := o.encoder.EndEncoding()
	if err != nil {
		o.releaseFrame(res)
		return nil, fmt.Errorf("compute: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return res, nil
}

// Close waits for the GPU and releases every resource. It is safe to call
// more than once.
func (o *Orchestrator) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	var err error
	if o.inflight != nil {
		if werr := o.device.WaitIdle(); werr != nil {
			err = fmt.Errorf("compute: wait idle: %w", werr)
		}
		o.releaseFrame(o.inflight)
		o.inflight = nil
	}
	o.release()
	slogger().Debug("compute: orchestrator closed", "frames", o.frame)
	return err
}

// release destroys everything created so far. Used by Close and by a
// failed NewOrchestrator.
func (o *Orchestrator) release() {
	if o.encoder != nil {
		o.encoder.Destroy()
		o.encoder = nil
	}
	if o.ownsCache && o.cache != nil {
		o.cache.Close()
	}
	for i, s := range o.stages {
		if s != nil {
			s.destroy(o.device)
			o.stages[i] = nil
		}
	}
	if o.images != nil {
		o.images.destroy()
		o.images = nil
	}
}
