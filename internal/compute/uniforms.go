package compute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/slime/internal/kernel"
)

// uniformAlign is the size granularity of every uniform block. WGSL rounds
// uniform struct sizes up to 16 bytes.
const uniformAlign = 16

// ErrShortUniform is returned when decoding a uniform block from too few bytes.
var ErrShortUniform = errors.New("compute: uniform block too short")

// uniformWriter appends little-endian scalars in WGSL declaration order.
type uniformWriter struct {
	buf []byte
}

func (w *uniformWriter) u32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *uniformWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

// flag encodes a bool as a u32 0 or 1.
func (w *uniformWriter) flag(v bool) {
	if v {
		w.u32(1)
		return
	}
	w.u32(0)
}

// bytes pads the block to uniformAlign and returns it.
func (w *uniformWriter) bytes() []byte {
	if rem := len(w.buf) % uniformAlign; rem != 0 {
		w.buf = append(w.buf, make([]byte, uniformAlign-rem)...)
	}
	return w.buf
}

// uniformReader is the inverse of uniformWriter.
type uniformReader struct {
	buf []byte
	off int
}

func (r *uniformReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *uniformReader) f32() float32 { return math.Float32frombits(r.u32()) }
func (r *uniformReader) flag() bool   { return r.u32() != 0 }

func newUniformReader(kind StageKind, b []byte) (*uniformReader, error) {
	if want := uniformSize(kind); uint64(len(b)) < want {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortUniform, kind, want, len(b))
	}
	return &uniformReader{buf: b}, nil
}

// uniformSize returns the byte size of a stage's uniform buffer.
func uniformSize(kind StageKind) uint64 {
	switch kind {
	case StageSimulation:
		return simulationParamsSize
	case StageFade:
		return fadeParamsSize
	case StageBlur:
		return blurParamsSize
	case StageRecolor:
		return recolorParamsSize
	default:
		panic(fmt.Sprintf("compute: uniform size for unknown stage %d", int(kind)))
	}
}

// encodeUniforms converts the frame context into the uniform bytes of kind.
func encodeUniforms(kind StageKind, fc FrameContext, cfg Config) []byte {
	switch kind {
	case StageSimulation:
		return simulationParamsFrom(fc, cfg).toBytes()
	case StageFade:
		return fadeParamsFrom(fc).toBytes()
	case StageBlur:
		return blurParamsFrom(fc, cfg).toBytes()
	case StageRecolor:
		return recolorParamsFrom(fc).toBytes()
	default:
		panic(fmt.Sprintf("compute: uniforms for unknown stage %d", int(kind)))
	}
}

// EncodeUniforms returns the uniform block the orchestrator writes for kind.
func EncodeUniforms(kind StageKind, fc FrameContext, cfg Config) ([]byte, error) {
	if kind < 0 || kind >= StageCount {
		return nil, fmt.Errorf("compute: unknown stage %d", int(kind))
	}
	return encodeUniforms(kind, fc, cfg), nil
}

// KernelParams returns the CPU reference parameters of one frame, decoded
// from the same uniform bytes the kernels receive.
func KernelParams(fc FrameContext, cfg Config) (kernel.FrameParams, error) {
	sim, err := DecodeSimulationParams(encodeUniforms(StageSimulation, fc, cfg))
	if err != nil {
		return kernel.FrameParams{}, err
	}
	fade, err := DecodeFadeParams(encodeUniforms(StageFade, fc, cfg))
	if err != nil {
		return kernel.FrameParams{}, err
	}
	blur, err := DecodeBlurParams(encodeUniforms(StageBlur, fc, cfg))
	if err != nil {
		return kernel.FrameParams{}, err
	}
	recolor, err := DecodeRecolorParams(encodeUniforms(StageRecolor, fc, cfg))
	if err != nil {
		return kernel.FrameParams{}, err
	}
	return kernel.FrameParams{
		Simulation: sim.Kernel(),
		Fade:       fade.Kernel(),
		Blur:       blur.Kernel(),
		Recolor:    recolor.Kernel(),
	}, nil
}
