package compute

// FrameContext carries the user-tunable parameters and timing of one frame.
// The orchestrator only reads it.
type FrameContext struct {
	// Pause is forwarded to every kernel. Kernels treat it as a no-op
	// condition; dispatches continue while paused.
	Pause bool

	// Agent movement tunables.
	Speed            float32
	SenseAngleOffset float32
	SenseDistance    float32
	TurnSpeed        float32
	TurnRandomness   float32

	// FadeRate is the per-second decay of image 1.
	FadeRate float32

	// HasTrails false makes the fade stage clear image 1 every frame.
	HasTrails bool

	// BlurRadius is clamped to [0, MaxBlurRadius] when encoded.
	BlurRadius uint32

	// Color is the straight-alpha RGBA tint applied by the recolor stage.
	Color [4]float32

	// DeltaTime is the duration of the previous frame in seconds.
	DeltaTime float32

	// Time is the elapsed time since start in seconds.
	Time float32
}
