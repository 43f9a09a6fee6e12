// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/internal/pipecache"
)

// StageKind identifies one of the four compute stages.
// The set is closed: every switch over StageKind is exhaustive.
type StageKind int

const (
	// StageSimulation moves agents and deposits their trail into image 1.
	// Input: image 0 + agents. Output: image 1 + agents.
	StageSimulation StageKind = iota

	// StageFade decays image 1 in place.
	StageFade

	// StageBlur diffuses image 0 into image 1.
	StageBlur

	// StageRecolor tints image 1 in place.
	StageRecolor

	// StageCount is the number of stages.
	StageCount
)

// String returns the kernel name of the stage.
func (k StageKind) String() string {
	switch k {
	case StageSimulation:
		return "simulation"
	case StageFade:
		return "fade"
	case StageBlur:
		return "blur"
	case StageRecolor:
		return "recolor"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// stageOrder is the only dispatch order. Later stages consume the output
// of earlier ones.
var stageOrder = [StageCount]StageKind{
	StageSimulation,
	StageFade,
	StageBlur,
	StageRecolor,
}

// Readiness is the compile state of a stage pipeline.
type Readiness uint8

const (
	// Loading means the pipeline is not available yet. Stages stay here
	// forever when compilation fails.
	Loading Readiness = iota

	// Ready means the pipeline exists and the stage dispatches every frame.
	Ready
)

// String returns the readiness name.
func (r Readiness) String() string {
	switch r {
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("Readiness(%d)", r)
	}
}

// DispatchSize is a workgroup count in three dimensions.
type DispatchSize struct {
	X, Y, Z uint32
}

// String formats the size as XxYxZ.
func (d DispatchSize) String() string {
	return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z)
}

// stageDispatchSize returns the workgroup count of a stage. cfg must have
// passed Validate; the divisions are exact.
func stageDispatchSize(kind StageKind, cfg Config) DispatchSize {
	switch kind {
	case StageSimulation:
		return DispatchSize{X: cfg.Agents / AgentGroupSize, Y: 1, Z: 1}
	case StageFade, StageBlur, StageRecolor:
		return DispatchSize{X: cfg.Width / TileSize, Y: cfg.Height / TileSize, Z: 1}
	default:
		panic(fmt.Sprintf("compute: dispatch size for unknown stage %d", int(kind)))
	}
}

// DispatchSizeFor validates cfg and returns the workgroup count of kind.
func DispatchSizeFor(kind StageKind, cfg Config) (DispatchSize, error) {
	if err := cfg.Validate(); err != nil {
		return DispatchSize{}, err
	}
	if kind < 0 || kind >= StageCount {
		return DispatchSize{}, fmt.Errorf("compute: unknown stage %d", int(kind))
	}
	return stageDispatchSize(kind, cfg), nil
}

// Binding helpers shared by the per-stage layout tables.

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func storageBufferEntry(binding uint32, minSize uint64) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: minSize,
		},
	}
}

func storageImageEntry(binding uint32, access gputypes.StorageTextureAccess) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access:        access,
			Format:        imageFormat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

// stageLayoutEntries returns the bind group layout of a stage. The entries
// match the @group(0) @binding(N) declarations of the stage kernel.
func stageLayoutEntries(kind StageKind) []gputypes.BindGroupLayoutEntry {
	switch kind {
	case StageSimulation:
		return simulationLayoutEntries()
	case StageFade:
		return fadeLayoutEntries()
	case StageBlur:
		return blurLayoutEntries()
	case StageRecolor:
		return recolorLayoutEntries()
	default:
		panic(fmt.Sprintf("compute: layout for unknown stage %d", int(kind)))
	}
}

func bufferBinding(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle()},
	}
}

func imageBinding(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
	}
}

// stage is one compute pass together with the GPU objects it owns.
type stage struct {
	kind StageKind

	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	uniform        hal.Buffer
	agents         hal.Buffer // StageSimulation only

	// bindGroup is rebuilt every frame and is nil until bind runs.
	bindGroup hal.BindGroup

	pipeline  hal.ComputePipeline
	readiness Readiness
	compile   pipecache.ID
	failed    error

	dispatches uint64
}

// mustResources panics with ErrResourceMissing if the stage is used before
// initResources completed.
func (s *stage) mustResources() {
	if s.uniform == nil || s.bgLayout == nil {
		panic(fmt.Errorf("%w: %s has no uniform buffer or layout", ErrResourceMissing, s.kind))
	}
	if s.kind == StageSimulation && s.agents == nil {
		panic(fmt.Errorf("%w: %s has no agent buffer", ErrResourceMissing, s.kind))
	}
}

// initResources creates the layout objects and per-stage buffers.
// agentData is only consumed by StageSimulation.
func (s *stage) initResources(device hal.Device, queue hal.Queue, agentData []byte) error {
	entries := stageLayoutEntries(s.kind)
	bgl, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   s.kind.String() + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("compute: create bind group layout for %s: %w", s.kind, err)
	}
	s.bgLayout = bgl

	pl, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            s.kind.String() + "_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		return fmt.Errorf("compute: create pipeline layout for %s: %w", s.kind, err)
	}
	s.pipelineLayout = pl

	ub, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: s.kind.String() + "_params",
		Size:  uniformSize(s.kind),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("compute: create uniform buffer for %s: %w", s.kind, err)
	}
	s.uniform = ub

	if s.kind == StageSimulation {
		ab, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "agents",
			Size:  uint64(len(agentData)),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("compute: create agent buffer: %w", err)
		}
		s.agents = ab
		if err := queue.WriteBuffer(ab, 0, agentData); err != nil {
			return fmt.Errorf("compute: upload agents: %w", err)
		}
	}

	slogger().Debug("compute: stage resources created",
		"stage", s.kind.String(),
		"bindings", len(entries),
		"uniform_bytes", uniformSize(s.kind))
	return nil
}

// prepare writes this frame's uniform block. It runs every frame
// regardless of readiness.
func (s *stage) prepare(queue hal.Queue, fc FrameContext, cfg Config) error {
	s.mustResources()
	data := encodeUniforms(s.kind, fc, cfg)
	if err := queue.WriteBuffer(s.uniform, 0, data); err != nil {
		return fmt.Errorf("compute: write %s params: %w", s.kind, err)
	}
	return nil
}

// bindEntries returns the bind group entries of a stage for the given images.
func (s *stage) bindEntries(images *ImagePair) []gputypes.BindGroupEntry {
	switch s.kind {
	case StageSimulation:
		return simulationBindEntries(s.uniform, s.agents, images)
	case StageFade:
		return fadeBindEntries(s.uniform, images)
	case StageBlur:
		return blurBindEntries(s.uniform, images)
	case StageRecolor:
		return recolorBindEntries(s.uniform, images)
	default:
		panic(fmt.Sprintf("compute: bind entries for unknown stage %d", int(s.kind)))
	}
}

// bind builds this frame's bind group. The caller owns the returned group
// and destroys it once the frame's submission has completed.
func (s *stage) bind(device hal.Device, images *ImagePair) (hal.BindGroup, error) {
	s.mustResources()
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   s.kind.String() + "_bg",
		Layout:  s.bgLayout,
		Entries: s.bindEntries(images),
	})
	if err != nil {
		return nil, fmt.Errorf("compute: create bind group for %s: %w", s.kind, err)
	}
	s.bindGroup = bg
	return bg, nil
}

// run records the stage dispatch into pass. It does nothing unless the
// stage is Ready.
func (s *stage) run(pass hal.ComputePassEncoder, size DispatchSize) bool {
	if s.readiness != Ready {
		return false
	}
	if s.bindGroup == nil {
		panic(fmt.Errorf("%w: %s dispatched without a bind group", ErrResourceMissing, s.kind))
	}
	pass.SetPipeline(s.pipeline)
	pass.SetBindGroup(0, s.bindGroup, nil)
	pass.Dispatch(size.X, size.Y, size.Z)
	s.dispatches++
	return true
}

// destroy releases everything the stage owns. Bind groups belong to the
// frame that created them and the pipeline belongs to the cache.
func (s *stage) destroy(device hal.Device) {
	s.bindGroup = nil
	if s.agents != nil {
		device.DestroyBuffer(s.agents)
		s.agents = nil
	}
	if s.uniform != nil {
		device.DestroyBuffer(s.uniform)
		s.uniform = nil
	}
	if s.pipelineLayout != nil {
		device.DestroyPipelineLayout(s.pipelineLayout)
		s.pipelineLayout = nil
	}
	if s.bgLayout != nil {
		device.DestroyBindGroupLayout(s.bgLayout)
		s.bgLayout = nil
	}
}
