// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/processing"
)

// ErrInvalidInputs is returned by NewOperation for a program without 1 to
// gpucore.MaxInputs inputs.
var ErrInvalidInputs = errors.New("graph: invalid input count")

// SlotPolicy decides when a multi-input operation fires.
type SlotPolicy uint8

const (
	// WaitForAll fires once every slot holds a frame of the same
	// generation, then clears all slots.
	WaitForAll SlotPolicy = iota

	// LatestPerSlot fires on every delivery once each slot has been filled
	// at least once, keeping the latest frame of every slot.
	LatestPerSlot
)

// String returns the policy name.
func (p SlotPolicy) String() string {
	switch p {
	case WaitForAll:
		return "wait-for-all"
	case LatestPerSlot:
		return "latest-per-slot"
	default:
		return fmt.Sprintf("SlotPolicy(%d)", p)
	}
}

// Parameterized is implemented by nodes with named uniforms.
type Parameterized interface {
	SetUniform(name string, v ...float32)
}

// SameSize is the default output policy.
func SameSize(in frame.Size) frame.Size { return in }

// Descriptor describes an operation.
type Descriptor struct {
	Label string

	// Program is built through the context's program cache. Its Inputs
	// field is the number of input slots.
	Program *gpucore.ProgramDescriptor

	// Uniforms are the initial uniform values. The map is copied.
	Uniforms gpucore.Uniforms

	// OutputSize maps the upright size of slot 0 to the output size.
	// Defaults to SameSize.
	OutputSize func(frame.Size) frame.Size

	Policy SlotPolicy
}

// OperationStats counts what an operation did with its inputs.
type OperationStats struct {
	Fired   uint64
	Dropped uint64
	Stale   uint64
}

// Operation runs one program over 1 to 3 inputs and pushes the result to
// its targets. Outputs are upright render targets from the shared pool.
type Operation struct {
	ctx        *processing.Context
	label      string
	program    gpucore.ProgramID
	inputs     int
	outputSize func(frame.Size) frame.Size
	policy     SlotPolicy

	slots   *Slots
	targets Targets

	mu        sync.Mutex
	uniforms  gpucore.Uniforms
	staged    []*frame.Resource
	gen       uint64
	lastFired uint64
	stats     OperationStats
}

// NewOperation builds the program and returns the operation. A build
// failure is returned wrapped in processing.ErrProgramBuild.
func NewOperation(ctx *processing.Context, desc Descriptor) (*Operation, error) {
	if desc.Program == nil || desc.Program.Inputs < 1 || desc.Program.Inputs > gpucore.MaxInputs {
		n := 0
		if desc.Program != nil {
			n = desc.Program.Inputs
		}
		return nil, fmt.Errorf("%w: %s: %d", ErrInvalidInputs, desc.Label, n)
	}
	id, err := ctx.Program(desc.Program)
	if err != nil {
		return nil, err
	}

	label := desc.Label
	if label == "" {
		label = desc.Program.Label
	}
	size := desc.OutputSize
	if size == nil {
		size = SameSize
	}
	n := desc.Program.Inputs
	return &Operation{
		ctx:        ctx,
		label:      label,
		program:    id,
		inputs:     n,
		outputSize: size,
		policy:     desc.Policy,
		slots:      NewSlots(n),
		uniforms:   desc.Uniforms.Clone(),
		staged:     make([]*frame.Resource, n),
	}, nil
}

// Label returns the operation label.
func (o *Operation) Label() string { return o.label }

// MaximumInputs returns the number of input slots.
func (o *Operation) MaximumInputs() int { return o.inputs }

// Slots returns the input slot bookkeeping.
func (o *Operation) Slots() *Slots { return o.slots }

// Targets returns the fan-out list.
func (o *Operation) Targets() *Targets { return &o.targets }

// Policy returns the slot policy.
func (o *Operation) Policy() SlotPolicy { return o.policy }

// SetUniform sets a named uniform used by subsequent firings.
func (o *Operation) SetUniform(name string, v ...float32) {
	o.mu.Lock()
	o.uniforms.Set(name, v...)
	o.mu.Unlock()
}

// Uniform returns a copy of a named uniform.
func (o *Operation) Uniform(name string) ([]float32, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.uniforms.Get(name)
	return append([]float32(nil), v...), ok
}

// Stats returns a snapshot of the counters.
func (o *Operation) Stats() OperationStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Staged returns the number of slots currently holding a frame.
func (o *Operation) Staged() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.staged {
		if r != nil {
			n++
		}
	}
	return n
}

// Deliver stages res on slot and fires when the slot policy is satisfied.
func (o *Operation) Deliver(res *frame.Resource, slot int) {
	inputs, uniforms := o.stage(res, slot)
	if inputs == nil {
		return
	}
	o.fire(inputs, uniforms)
}

// stage records res and returns the inputs to fire with, each carrying a
// reference owned by the caller, or nil.
func (o *Operation) stage(res *frame.Resource, slot int) ([]*frame.Resource, gpucore.Uniforms) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if slot < 0 || slot >= o.inputs {
		o.stats.Dropped++
		vidflow.Logger().Debug("graph: delivery to unknown slot", "op", o.label, "slot", slot)
		res.Unlock()
		return nil, nil
	}

	if o.policy == WaitForAll {
		if gen := res.Generation(); gen != 0 {
			if gen <= o.lastFired || gen < o.gen {
				o.stats.Stale++
				vidflow.Logger().Debug("graph: stale generation", "op", o.label, "slot", slot, "gen", gen)
				res.Unlock()
				return nil, nil
			}
			if gen > o.gen {
				o.evictOlderLocked(gen)
				o.gen = gen
			}
		}
	}

	if old := o.staged[slot]; old != nil {
		o.stats.Stale++
		old.Unlock()
	}
	o.staged[slot] = res

	for _, r := range o.staged {
		if r == nil {
			return nil, nil
		}
	}

	inputs := make([]*frame.Resource, o.inputs)
	copy(inputs, o.staged)
	switch o.policy {
	case LatestPerSlot:
		// Staged frames stay for the next firing; the render gets its own hold.
		for _, r := range inputs {
			r.Lock()
		}
	default:
		clear(o.staged)
		if o.gen != 0 {
			o.lastFired = o.gen
		}
		o.gen = 0
	}
	return inputs, o.uniforms.Clone()
}

// evictOlderLocked releases staged frames older than gen. Untagged frames
// only belong to the round they were staged in and go too.
func (o *Operation) evictOlderLocked(gen uint64) {
	for i, r := range o.staged {
		if r == nil {
			continue
		}
		if r.Generation() < gen {
			o.stats.Stale++
			r.Unlock()
			o.staged[i] = nil
		}
	}
}

func (o *Operation) fire(inputs []*frame.Resource, uniforms gpucore.Uniforms) {
	defer func() {
		for _, r := range inputs {
			r.Unlock()
		}
	}()

	first := inputs[0]
	upright := first.Orientation().SizeForTarget(first.Size(), frame.Portrait)
	size := o.outputSize(upright)
	if size.Empty() {
		o.drop("empty output size", nil)
		return
	}

	out, err := o.ctx.Pool().Acquire(size.Width, size.Height, frame.Portrait, false)
	if err != nil {
		o.drop("output allocation failed", err)
		return
	}
	if err := o.ctx.Render(o.program, inputs, uniforms, out); err != nil {
		out.Unlock()
		o.drop("render failed", err)
		return
	}

	var gen uint64
	for _, r := range inputs {
		gen = max(gen, r.Generation())
	}
	out.SetTimestamp(first.Timestamp())
	out.SetGeneration(gen)

	o.mu.Lock()
	o.stats.Fired++
	o.mu.Unlock()

	o.targets.Push(out)
}

func (o *Operation) drop(reason string, err error) {
	o.mu.Lock()
	o.stats.Dropped++
	o.mu.Unlock()
	if err != nil {
		vidflow.Logger().Warn("graph: frame dropped", "op", o.label, "reason", reason, "err", err)
		return
	}
	vidflow.Logger().Debug("graph: frame dropped", "op", o.label, "reason", reason)
}

// Reset releases every staged frame.
func (o *Operation) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, r := range o.staged {
		if r != nil {
			r.Unlock()
			o.staged[i] = nil
		}
	}
	o.gen = 0
}

var (
	_ Node          = (*Operation)(nil)
	_ Parameterized = (*Operation)(nil)
)
