package slime

import (
	"github.com/gogpu/naga"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/slime/internal/pipecache"
)

// Compiler turns WGSL into a shader source the device accepts. It runs on
// a background goroutine and must not use the device.
type Compiler = pipecache.Compiler

// Option configures a Simulation during creation.
//
// Example:
//
//	sim, err := slime.New(device, queue, cfg,
//	    slime.WithSeed(42),
//	    slime.WithMetrics(prometheus.DefaultRegisterer),
//	)
type Option func(*options)

type options struct {
	compiler Compiler
	workers  int
	registry prometheus.Registerer
	seed     uint64
	seeded   bool
}

// WithCompiler replaces the kernel compiler. The default compiles WGSL to
// SPIR-V with naga.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithSPIRV compiles kernels to SPIR-V with the given naga options.
func WithSPIRV(opts naga.CompileOptions) Option {
	return func(o *options) {
		o.compiler = pipecache.SPIRVCompiler(opts)
	}
}

// WithWGSL validates kernels with naga and hands WGSL to the backend.
func WithWGSL() Option {
	return func(o *options) {
		o.compiler = pipecache.WGSLCompiler()
	}
}

// WithCompileWorkers bounds the number of kernels compiled concurrently.
func WithCompileWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMetrics registers per-stage dispatch metrics with reg. Registering
// two simulations with the same registerer panics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithSeed makes agent placement deterministic.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}
