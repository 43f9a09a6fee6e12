package pipecache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Compiler turns WGSL source into a shader source the device accepts.
// It runs on a background goroutine and must not touch the device.
type Compiler func(ctx context.Context, label, wgsl string) (hal.ShaderSource, error)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// errNotSPIRV is returned when the compiler output is not a SPIR-V module.
var errNotSPIRV = errors.New("pipecache: compiler output is not SPIR-V")

// SPIRVCompiler compiles WGSL to SPIR-V words with naga.
func SPIRVCompiler(opts naga.CompileOptions) Compiler {
	return func(ctx context.Context, label, wgsl string) (hal.ShaderSource, error) {
		if err := ctx.Err(); err != nil {
			return hal.ShaderSource{}, err
		}
		spirvBytes, err := naga.CompileWithOptions(wgsl, opts)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: compile %s: %w", label, err)
		}
		words, err := spirvWords(spirvBytes)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: compile %s: %w", label, err)
		}
		return hal.ShaderSource{SPIRV: words}, nil
	}
}

// WGSLCompiler validates WGSL with naga and passes the source through for
// backends that consume WGSL directly.
func WGSLCompiler() Compiler {
	return func(ctx context.Context, label, wgsl string) (hal.ShaderSource, error) {
		if err := ctx.Err(); err != nil {
			return hal.ShaderSource{}, err
		}
		ast, err := naga.Parse(wgsl)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: parse %s: %w", label, err)
		}
		module, err := naga.LowerWithSource(ast, wgsl)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: lower %s: %w", label, err)
		}
		verrs, err := naga.Validate(module)
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: validate %s: %w", label, err)
		}
		if len(verrs) > 0 {
			return hal.ShaderSource{}, fmt.Errorf("pipecache: validate %s: %w (%d issues)", label, verrs[0], len(verrs))
		}
		return hal.ShaderSource{WGSL: wgsl}, nil
	}
}

// DefaultCompiler compiles to SPIR-V with naga's default options.
func DefaultCompiler() Compiler {
	return SPIRVCompiler(naga.DefaultOptions())
}

// spirvWords converts little-endian SPIR-V bytes into 32-bit words.
func spirvWords(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errNotSPIRV, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", errNotSPIRV, words[0])
	}
	return words, nil
}
