// Command slimesim runs the slime simulation without a window and reports
// what each compute stage did.
//
// Usage:
//
//	slimesim [-backend auto] [-frames 600] [-pause-after 0] [-metrics :9090]
//
// Settings are read from slime_simulation_config.toml, which is created
// with defaults on first run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/slime"
	"github.com/gogpu/slime/config"
)

type options struct {
	configPath  string
	backend     string
	frames      int
	pauseAfter  int
	unpause     bool
	waitCompile bool
	metricsAddr string
	watch       bool
	wgsl        bool
	workers     int
	seed        uint64
	snapshot    snapshotOptions
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", config.DefaultPath, "settings file, created with defaults if missing")
	flag.StringVar(&o.backend, "backend", "auto", "HAL backend: auto, vulkan, metal, dx12, gles or noop")
	flag.IntVar(&o.frames, "frames", 600, "number of frames to run")
	flag.IntVar(&o.pauseAfter, "pause-after", 0, "pause the simulation after this many frames (0 never pauses)")
	flag.BoolVar(&o.unpause, "unpause", true, "start unpaused even if the settings file says pause")
	flag.BoolVar(&o.waitCompile, "wait", true, "wait for all kernels before the first frame")
	flag.StringVar(&o.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	flag.BoolVar(&o.watch, "watch", false, "reload the settings file while running")
	flag.BoolVar(&o.wgsl, "wgsl", false, "pass validated WGSL to the backend instead of SPIR-V")
	flag.IntVar(&o.workers, "compile-workers", 0, "concurrent kernel compilations (0 uses GOMAXPROCS)")
	flag.Uint64Var(&o.seed, "seed", 1, "agent placement seed")
	flag.StringVar(&o.snapshot.path, "snapshot", "", "write a PNG of the CPU reference model to this file")
	flag.IntVar(&o.snapshot.frames, "snapshot-frames", 120, "frames stepped by the CPU reference model")
	snapW := flag.Uint("snapshot-width", 320, "CPU reference image width")
	snapH := flag.Uint("snapshot-height", 184, "CPU reference image height")
	snapA := flag.Uint("snapshot-agents", 4096, "CPU reference agent count")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	o.snapshot.width = uint32(*snapW)  //nolint:gosec // flag values are small
	o.snapshot.height = uint32(*snapH) //nolint:gosec // flag values are small
	o.snapshot.agents = uint32(*snapA) //nolint:gosec // flag values are small
	o.snapshot.seed = o.seed

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slime.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatalf("slimesim: %v", err)
	}
}

func run(ctx context.Context, o options, stdout io.Writer) error {
	settings, created, err := config.LoadOrCreate(o.configPath)
	if err != nil {
		return err
	}
	if created {
		slog.Info("wrote default settings", "path", o.configPath)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	fc, err := slime.FrameContextFromSettings(settings)
	if err != nil {
		return err
	}
	if o.unpause {
		fc.Pause = false
	}

	name, backend, err := selectBackend(newBackendRegistry(), o.backend)
	if err != nil {
		return err
	}
	dev, err := openGPU(backend)
	if err != nil {
		return err
	}
	defer dev.close()
	slog.Info("device opened", "backend", name, "adapter", dev.adapter)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	simOpts := []slime.Option{
		slime.WithSeed(o.seed),
		slime.WithMetrics(reg),
		slime.WithCompileWorkers(o.workers),
	}
	if o.wgsl {
		simOpts = append(simOpts, slime.WithWGSL())
	}
	cfg := slime.ConfigFromSettings(settings)
	cfg.Limits = dev.limits
	sim, err := slime.New(dev.device, dev.queue, cfg, simOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sim.Close(); err != nil {
			slog.Warn("close simulation", "err", err)
		}
	}()

	var live atomic.Pointer[slime.FrameContext]
	live.Store(&fc)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if o.metricsAddr != "" {
		serveMetrics(gctx, g, o.metricsAddr, reg)
	}
	if o.watch {
		w, err := config.NewWatcher(o.configPath, func(s config.Settings) {
			next, err := slime.FrameContextFromSettings(s)
			if err != nil {
				slog.Warn("ignoring reloaded settings", "err", err)
				return
			}
			next.Pause = live.Load().Pause
			live.Store(&next)
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	var elapsed time.Duration
	g.Go(func() error {
		defer cancel()
		start := time.Now()
		err := runFrames(gctx, sim, o, &live)
		elapsed = time.Since(start)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printSummary(stdout, sim, elapsed)

	if o.snapshot.path != "" {
		snapFC := *live.Load()
		if snapFC.DeltaTime == 0 {
			snapFC.DeltaTime = 1.0 / 60
		}
		if err := writeSnapshot(o.snapshot, snapFC, settings.Window); err != nil {
			return err
		}
		slog.Info("snapshot written", "path", o.snapshot.path)
	}
	return nil
}

// runFrames drives the simulation for o.frames frames.
func runFrames(ctx context.Context, sim *slime.Simulation, o options, live *atomic.Pointer[slime.FrameContext]) error {
	if o.waitCompile {
		if err := sim.WaitCompiled(ctx); err != nil {
			return err
		}
	}

	clock := newFrameClock(time.Now())
	for i := range o.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		fc := *live.Load()
		fc.DeltaTime, fc.Time = clock.tick(time.Now())
		if o.pauseAfter > 0 && i >= o.pauseAfter {
			fc.Pause = true
		}

		stats, err := sim.Frame(ctx, fc)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		if stats.Dispatches() < int(slime.StageCount) {
			slog.Debug("frame skipped stages", "frame", stats.Frame, "dispatched", stats.Dispatches())
		}
	}
	return nil
}

// firstFrameDelta is the delta time reported for the first frame.
const firstFrameDelta = time.Second / 60

// frameClock turns wall-clock ticks into per-frame delta and elapsed time.
type frameClock struct {
	start time.Time
	last  time.Time
}

func newFrameClock(start time.Time) *frameClock {
	return &frameClock{start: start, last: start.Add(-firstFrameDelta)}
}

// tick returns the time since the previous tick and since start, in seconds.
func (c *frameClock) tick(now time.Time) (delta, elapsed float32) {
	delta = float32(now.Sub(c.last).Seconds())
	elapsed = float32(now.Sub(c.start).Seconds())
	c.last = now
	return delta, elapsed
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func printSummary(w io.Writer, sim *slime.Simulation, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	cfg := sim.Config()
	p.Fprintf(w, "%d agents on %dx%d in %v\n", cfg.Agents, cfg.Width, cfg.Height, elapsed.Round(time.Millisecond))
	for _, kind := range sim.Order() {
		size := sim.DispatchSize(kind)
		p.Fprintf(w, "  %-10s %-7s dispatched %d frames, %d workgroups each\n",
			kind, sim.Readiness(kind), sim.Dispatches(kind), size.X*size.Y*size.Z)
	}
	for kind, err := range sim.Failed() {
		p.Fprintf(w, "  %s failed: %v\n", kind, err)
	}
}
