package compute

import (
	"github.com/gogpu/slime/internal/kernel"
	"github.com/gogpu/slime/internal/pipecache"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	cache    *pipecache.Cache
	cacheOps []pipecache.Option
	metrics  *Metrics
	seed     uint64
	agents   []kernel.Agent
}

func defaultOptions() options {
	return options{seed: 1}
}

// WithPipelineCache shares an existing cache. The orchestrator does not
// close a shared cache.
func WithPipelineCache(c *pipecache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithCacheOptions configures the cache the orchestrator creates when no
// shared cache is given.
func WithCacheOptions(opts ...pipecache.Option) Option {
	return func(o *options) {
		o.cacheOps = append(o.cacheOps, opts...)
	}
}

// WithMetrics records dispatch activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSeed sets the seed of the agent placement.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithAgents uploads the given agents instead of seeding new ones. The
// slice length must equal Config.Agents.
func WithAgents(agents []kernel.Agent) Option {
	return func(o *options) {
		o.agents = agents
	}
}
