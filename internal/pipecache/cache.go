// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipecache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("pipecache: cache closed")

// State is the compile state of a queued request.
type State uint8

const (
	// StatePending means compilation has not finished.
	StatePending State = iota

	// StateReady means the compute pipeline exists.
	StateReady

	// StateFailed means compilation or pipeline creation failed. It is final.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// ID identifies a queued request.
type ID int

// Request describes one compute pipeline.
type Request struct {
	// Label names the pipeline in logs and GPU debug tools.
	Label string

	// Source is the WGSL kernel.
	Source string

	// EntryPoint is the compute entry point, "main" when empty.
	EntryPoint string

	// Layout is the pipeline layout. It stays owned by the caller.
	Layout hal.PipelineLayout
}

// Result is the outcome of Poll.
type Result struct {
	State    State
	Pipeline hal.ComputePipeline
	Err      error
}

// sourceKey identifies compiled output by source hash.
type sourceKey [sha256.Size]byte

type entry struct {
	req  Request
	done chan struct{}

	// Written by the compile goroutine before done is closed.
	source hal.ShaderSource
	err    error

	// Owned by the polling goroutine, guarded by Cache.mu.
	state    State
	module   hal.ShaderModule
	pipeline hal.ComputePipeline
	queued   time.Time
}

// Cache compiles pipelines asynchronously.
type Cache struct {
	device  hal.Device
	compile Compiler
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	compiled *lru.Cache[sourceKey, hal.ShaderSource]

	mu      sync.Mutex
	entries []*entry
	closed  bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	compiler Compiler
	workers  int64
	capacity int
}

// WithCompiler replaces the naga SPIR-V compiler.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		if c != nil {
			o.compiler = c
		}
	}
}

// WithWorkers bounds the number of concurrent compilations.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = int64(n)
		}
	}
}

// WithCapacity sets how many compiled sources are kept for reuse.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// New creates a cache that builds pipelines on device.
func New(device hal.Device, opts ...Option) *Cache {
	o := options{
		workers:  int64(runtime.GOMAXPROCS(0)),
		capacity: 32,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.compiler == nil {
		o.compiler = DefaultCompiler()
	}

	compiled, err := lru.NewWithEvict[sourceKey, hal.ShaderSource](o.capacity, func(k sourceKey, _ hal.ShaderSource) {
		slogger().Debug("pipecache: compiled source evicted", "key", fmt.Sprintf("%x", k[:6]))
	})
	if err != nil {
		// Only a non-positive size fails, which the options rule out.
		panic(fmt.Sprintf("pipecache: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		device:   device,
		compile:  o.compiler,
		sem:      semaphore.NewWeighted(o.workers),
		ctx:      ctx,
		cancel:   cancel,
		compiled: compiled,
	}
}

// Queue registers a request and starts compiling it in the background.
// It returns immediately. It is safe to call concurrently with Close.
func (c *Cache) Queue(req Request) ID {
	if req.EntryPoint == "" {
		req.EntryPoint = "main"
	}
	e := &entry{req: req, done: make(chan struct{}), queued: time.Now()}

	// The compile goroutine is registered under mu so Close either sees it
	// in group.Wait or Queue sees closed.
	c.mu.Lock()
	defer c.mu.Unlock()
	id := ID(len(c.entries))
	c.entries = append(c.entries, e)

	if c.closed {
		e.err = ErrClosed
		close(e.done)
		return id
	}

	key := sourceKey(sha256.Sum256([]byte(req.Source)))
	if src, ok := c.compiled.Get(key); ok {
		slogger().Debug("pipecache: compiled source reused", "label", req.Label)
		e.source = src
		close(e.done)
		return id
	}

	c.group.Go(func() error {
		defer close(e.done)
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			e.err = err
			return nil
		}
		defer c.sem.Release(1)

		start := time.Now()
		src, err := c.compile(c.ctx, req.Label, req.Source)
		if err != nil {
			e.err = err
			return nil
		}
		c.compiled.Add(key, src)
		e.source = src
		slogger().Debug("pipecache: compiled",
			"label", req.Label,
			"spirv_words", len(src.SPIRV),
			"elapsed", time.Since(start))
		return nil
	})
	return id
}

// Poll reports the state of a request without blocking. The first Poll
// after compilation finishes creates the shader module and pipeline.
func (c *Cache) Poll(id ID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(id) < 0 || int(id) >= len(c.entries) {
		return Result{State: StateFailed, Err: fmt.Errorf("pipecache: unknown request %d", id)}
	}
	e := c.entries[id]

	switch e.state {
	case StateReady:
		return Result{State: StateReady, Pipeline: e.pipeline}
	case StateFailed:
		return Result{State: StateFailed, Err: e.err}
	}

	select {
	case <-e.done:
	default:
		return Result{State: StatePending}
	}

	if e.err == nil {
		e.err = c.build(e)
	}
	if e.err != nil {
		e.state = StateFailed
		slogger().Error("pipecache: pipeline unavailable",
			"label", e.req.Label,
			"err", e.err)
		return Result{State: StateFailed, Err: e.err}
	}

	e.state = StateReady
	slogger().Info("pipecache: pipeline ready",
		"label", e.req.Label,
		"elapsed", time.Since(e.queued))
	return Result{State: StateReady, Pipeline: e.pipeline}
}

// build creates the shader module and pipeline. The caller holds c.mu.
func (c *Cache) build(e *entry) error {
	if c.closed {
		return ErrClosed
	}
	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  e.req.Label,
		Source: e.source,
	})
	if err != nil {
		return fmt.Errorf("pipecache: create shader module %s: %w", e.req.Label, err)
	}

	pipeline, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  e.req.Label,
		Layout: e.req.Layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: e.req.EntryPoint,
		},
	})
	if err != nil {
		c.device.DestroyShaderModule(module)
		return fmt.Errorf("pipecache: create compute pipeline %s: %w", e.req.Label, err)
	}
	e.module = module
	e.pipeline = pipeline
	return nil
}

// Wait blocks until compilation of id has finished or ctx is done. It does
// not create the pipeline; the next Poll does.
func (c *Cache) Wait(ctx context.Context, id ID) error {
	c.mu.Lock()
	if int(id) < 0 || int(id) >= len(c.entries) {
		c.mu.Unlock()
		return fmt.Errorf("pipecache: unknown request %d", id)
	}
	e := c.entries[id]
	c.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued requests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops pending compilations, waits for the workers and destroys
// every pipeline and shader module the cache created.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.group.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.pipeline != nil {
			c.device.DestroyComputePipeline(e.pipeline)
			e.pipeline = nil
		}
		if e.module != nil {
			c.device.DestroyShaderModule(e.module)
			e.module = nil
		}
	}
	c.compiled.Purge()
}
