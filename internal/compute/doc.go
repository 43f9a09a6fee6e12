// Package compute sequences the per-frame GPU compute passes of the slime
// simulation.
//
// Four stages run in a fixed order on every frame:
//
//	Simulation -> Fade -> Blur -> Recolor
//
// All stages share a pair of RGBA8 storage textures with fixed roles. Image 0
// holds the previous trail snapshot and image 1 is the accumulation target
// that presentation reads. Blur is the only stage that reads image 0 and
// writes image 1 in the same dispatch; the others work on image 1 (Simulation
// additionally samples image 0 and updates the agent buffer).
//
// # Frame Lifecycle
//
// [Orchestrator.Frame] performs, in order:
//
//  1. Poll each stage's pipeline readiness (non-blocking).
//  2. Write every stage's uniform block from the [FrameContext].
//  3. Rebuild bind groups for Ready stages.
//  4. Record one compute pass per Ready stage into a single encoder.
//  5. Submit once.
//
// A stage whose pipeline is still compiling is skipped for that frame. Once
// its pipeline is available it is dispatched on every subsequent frame.
// Pause is a kernel-side no-op and never suppresses a dispatch.
//
// # Dispatch Sizing
//
// Texture stages use 8x8 workgroups and dispatch (W/8, H/8, 1). The agent
// stage uses 16-wide workgroups and dispatches (A/16, 1, 1). Sizes that are
// not exact multiples are rejected by [NewOrchestrator] with
// [ErrConfiguration] before any GPU resource is created.
package compute
