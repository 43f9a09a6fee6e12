// Package kernel is a CPU reference model of the slime compute kernels.
//
// Each function mirrors one WGSL kernel in internal/compute/shaders and
// honors the same parameters, including pause. The model is used by tests
// and by the headless runner to produce snapshots without a GPU.
//
// Images are *image.RGBA with the same roles as on the GPU: the snapshot
// (image 0) is read for sensing and blurring, the accumulation image
// (image 1) is written. Trail intensity lives in the alpha channel; recolor
// derives RGB from it so it can run every frame without compounding.
package kernel
