package graph

import (
	"fmt"
	"sync"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/frame"
)

// Relay forwards every frame it receives to its targets unchanged.
type Relay struct {
	slots   *Slots
	targets Targets
}

// NewRelay returns a single-input relay.
func NewRelay() *Relay {
	return &Relay{slots: NewSlots(1)}
}

// MaximumInputs returns 1.
func (r *Relay) MaximumInputs() int { return 1 }

// Slots returns the input slot bookkeeping.
func (r *Relay) Slots() *Slots { return r.slots }

// Targets returns the fan-out list.
func (r *Relay) Targets() *Targets { return &r.targets }

// Deliver pushes res to the targets.
func (r *Relay) Deliver(res *frame.Resource, _ int) {
	r.targets.Push(res)
}

// Group exposes an internal subgraph as a single-input, single-output
// node. Uniforms set on the group reach the inner nodes registered with
// Forward; nothing is propagated implicitly.
type Group struct {
	label  string
	slots  *Slots
	input  *Relay
	output *Relay

	mu       sync.Mutex
	forwards map[string][]Parameterized
}

// NewGroup returns an empty group. Call Configure to wire its interior.
func NewGroup(label string) *Group {
	return &Group{
		label:    label,
		slots:    NewSlots(1),
		input:    NewRelay(),
		output:   NewRelay(),
		forwards: make(map[string][]Parameterized),
	}
}

// Label returns the group label.
func (g *Group) Label() string { return g.label }

// Configure wires the interior: build connects nodes from input and into
// output. Errors are returned wrapped with the group label.
func (g *Group) Configure(build func(input Source, output Consumer) error) error {
	if err := build(g.input, g.output); err != nil {
		return fmt.Errorf("graph: group %s: %w", g.label, err)
	}
	return nil
}

// Forward routes the named uniform to nodes.
func (g *Group) Forward(name string, nodes ...Parameterized) {
	g.mu.Lock()
	g.forwards[name] = append(g.forwards[name], nodes...)
	g.mu.Unlock()
}

// SetUniform sets name on every node it was forwarded to.
func (g *Group) SetUniform(name string, v ...float32) {
	g.mu.Lock()
	nodes := g.forwards[name]
	g.mu.Unlock()
	if len(nodes) == 0 {
		vidflow.Logger().Debug("graph: uniform not forwarded", "group", g.label, "name", name)
		return
	}
	for _, n := range nodes {
		n.SetUniform(name, v...)
	}
}

// MaximumInputs returns 1.
func (g *Group) MaximumInputs() int { return 1 }

// Slots returns the external input slot bookkeeping.
func (g *Group) Slots() *Slots { return g.slots }

// Targets returns the external fan-out list, fed by the interior output.
func (g *Group) Targets() *Targets { return g.output.Targets() }

// Deliver feeds res into the interior.
func (g *Group) Deliver(res *frame.Resource, _ int) {
	g.input.Deliver(res, 0)
}

// Callback is a terminal consumer that hands every frame to a function.
// The frame is released when the function returns; fn must Lock it to
// keep it longer.
type Callback struct {
	slots *Slots
	fn    func(*frame.Resource)
}

// NewCallback returns a consumer calling fn.
func NewCallback(fn func(*frame.Resource)) *Callback {
	return &Callback{slots: NewSlots(1), fn: fn}
}

// MaximumInputs returns 1.
func (c *Callback) MaximumInputs() int { return 1 }

// Slots returns the input slot bookkeeping.
func (c *Callback) Slots() *Slots { return c.slots }

// Deliver calls fn and releases res.
func (c *Callback) Deliver(res *frame.Resource, _ int) {
	defer res.Unlock()
	c.fn(res)
}

var (
	_ Node          = (*Relay)(nil)
	_ Node          = (*Group)(nil)
	_ Parameterized = (*Group)(nil)
	_ Consumer      = (*Callback)(nil)
)
