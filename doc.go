// Package slime runs a particle-trail ("slime mold") simulation on the GPU.
//
// # Overview
//
// A fixed population of agents moves across a shared RGBA8 image, steering
// toward existing trail and depositing new intensity. Every frame four
// compute kernels run in a fixed order on one queue submission:
//
//	Simulation -> Fade -> Blur -> Recolor
//
// Kernels compile in the background. Until a kernel is ready its stage is
// skipped; once ready it runs on every frame. Pausing is forwarded to the
// kernels, so paused frames still dispatch.
//
// # Quick Start
//
//	sim, err := slime.New(device, queue, slime.Config{
//	    Width: 2560, Height: 1440, Agents: 1_000_000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	fc := slime.DefaultFrameContext()
//	for {
//	    fc.DeltaTime, fc.Time = dt, elapsed
//	    if _, err := sim.Frame(ctx, fc); err != nil {
//	        log.Fatal(err)
//	    }
//	    present(sim.Output())
//	}
//
// # Shared Images
//
// The simulation owns two textures. [Simulation.Snapshot] is the previous
// trail state, [Simulation.Output] is the accumulated image to present.
// Both are allocated once; their size cannot change.
//
// # Host Integration
//
// [NewFromProvider] accepts a [gpucontext.DeviceProvider] and shares the
// host's device and queue instead of creating its own.
//
// # Logging
//
// slime is silent by default. [SetLogger] enables structured logging for
// slime, its internal packages, the config package and the HAL.
package slime
