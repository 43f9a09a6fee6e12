package compute

import (
	_ "embed"
	"fmt"
)

//go:embed shaders/simulation.wgsl
var shaderSimulation string

//go:embed shaders/fade.wgsl
var shaderFade string

//go:embed shaders/blur.wgsl
var shaderBlur string

//go:embed shaders/recolor.wgsl
var shaderRecolor string

// entryPoint is the compute entry point of every kernel.
const entryPoint = "main"

// stageSource returns the embedded WGSL kernel of a stage.
func stageSource(kind StageKind) string {
	switch kind {
	case StageSimulation:
		return shaderSimulation
	case StageFade:
		return shaderFade
	case StageBlur:
		return shaderBlur
	case StageRecolor:
		return shaderRecolor
	default:
		panic(fmt.Sprintf("compute: source for unknown stage %d", int(kind)))
	}
}

// StageSource returns the WGSL kernel used for kind.
func StageSource(kind StageKind) (string, error) {
	if kind < 0 || kind >= StageCount {
		return "", fmt.Errorf("compute: unknown stage %d", int(kind))
	}
	return stageSource(kind), nil
}
