package kernel

import "golang.org/x/exp/constraints"

// Clamp restricts n to [lo, hi].
func Clamp[N constraints.Integer | constraints.Float](n, lo, hi N) N {
	return min(max(n, lo), hi)
}

// hash is the integer hash used by simulation.wgsl for per-agent noise.
func hash(state uint32) uint32 {
	state ^= 2747636419
	state *= 2654435769
	state ^= state >> 16
	state *= 2654435769
	state ^= state >> 16
	state *= 2654435769
	return state
}

// unit maps a hash value to [0, 1].
func unit(h uint32) float32 {
	return float32(h) / 4294967295.0
}

func toUnorm(v float32) uint8 {
	return uint8(Clamp(v, 0, 1)*255 + 0.5)
}

func fromUnorm(v uint8) float32 {
	return float32(v) / 255
}
