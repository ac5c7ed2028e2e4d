// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/vidflow/frame"
)

// Wiring errors.
var (
	// ErrNoFreeSlot is returned by Connect when every input slot of the
	// consumer is already connected.
	ErrNoFreeSlot = errors.New("graph: no free input slot")

	// ErrSlotOutOfRange is returned for a slot index outside the consumer's inputs.
	ErrSlotOutOfRange = errors.New("graph: slot out of range")

	// ErrSlotTaken is returned by ConnectAt when the slot is already connected.
	ErrSlotTaken = errors.New("graph: slot already connected")

	// ErrNotConnected is returned by Disconnect for an edge that does not exist.
	ErrNotConnected = errors.New("graph: not connected")
)

// Source is a node that produces frames.
type Source interface {
	Targets() *Targets
}

// Consumer is a node with numbered input slots.
type Consumer interface {
	// MaximumInputs returns the number of input slots.
	MaximumInputs() int

	// Slots returns the connection bookkeeping of the input slots.
	Slots() *Slots

	// Deliver hands one reference to res to the consumer on the given slot.
	// The consumer releases it when done.
	Deliver(res *frame.Resource, slot int)
}

// Node is both a Source and a Consumer, like most filters.
type Node interface {
	Source
	Consumer
}

// Slots records which input slots of a consumer have an incoming edge.
type Slots struct {
	mu   sync.Mutex
	used []bool
}

// NewSlots returns bookkeeping for n input slots.
func NewSlots(n int) *Slots {
	return &Slots{used: make([]bool, n)}
}

// Len returns the number of slots.
func (s *Slots) Len() int {
	return len(s.used)
}

// Connected returns the number of slots with an incoming edge.
func (s *Slots) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.used {
		if u {
			n++
		}
	}
	return n
}

// IsConnected reports whether slot has an incoming edge.
func (s *Slots) IsConnected(slot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slot >= 0 && slot < len(s.used) && s.used[slot]
}

func (s *Slots) reserve() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.used {
		if !u {
			s.used[i] = true
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d inputs", ErrNoFreeSlot, len(s.used))
}

func (s *Slots) reserveAt(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.used) {
		return fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, slot, len(s.used))
	}
	if s.used[slot] {
		return fmt.Errorf("%w: %d", ErrSlotTaken, slot)
	}
	s.used[slot] = true
	return nil
}

func (s *Slots) free(slot int) {
	s.mu.Lock()
	if slot >= 0 && slot < len(s.used) {
		s.used[slot] = false
	}
	s.mu.Unlock()
}

type target struct {
	consumer Consumer
	slot     int
}

// Targets is the fan-out list of a source.
type Targets struct {
	mu   sync.Mutex
	list []target
}

// Len returns the number of targets.
func (t *Targets) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.list)
}

func (t *Targets) add(c Consumer, slot int) {
	t.mu.Lock()
	t.list = append(t.list, target{consumer: c, slot: slot})
	t.mu.Unlock()
}

func (t *Targets) remove(c Consumer) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, tg := range t.list {
		if tg.consumer == c {
			t.list = append(t.list[:i], t.list[i+1:]...)
			return tg.slot, true
		}
	}
	return -1, false
}

func (t *Targets) snapshot() []target {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]target, len(t.list))
	copy(out, t.list)
	return out
}

// Push hands res to every target. The caller's reference is consumed:
// each target receives its own lock and the caller's hold is dropped
// once all deliveries returned. With no targets res is simply released.
func (t *Targets) Push(res *frame.Resource) {
	for _, tg := range t.snapshot() {
		res.Lock()
		tg.consumer.Deliver(res, tg.slot)
	}
	res.Unlock()
}

// Connect adds an edge from src to the lowest free input slot of dst and
// returns the slot.
func Connect(src Source, dst Consumer) (int, error) {
	slot, err := dst.Slots().reserve()
	if err != nil {
		return -1, err
	}
	src.Targets().add(dst, slot)
	return slot, nil
}

// ConnectAt adds an edge from src to a specific input slot of dst.
func ConnectAt(src Source, dst Consumer, slot int) error {
	if err := dst.Slots().reserveAt(slot); err != nil {
		return err
	}
	src.Targets().add(dst, slot)
	return nil
}

// Disconnect removes the edge from src to dst and frees its slot.
func Disconnect(src Source, dst Consumer) error {
	slot, ok := src.Targets().remove(dst)
	if !ok {
		return ErrNotConnected
	}
	dst.Slots().free(slot)
	return nil
}

// Chain connects src to the first node, each node to the next, and the
// last node to sink. A nil sink ends the chain at the last node.
func Chain(src Source, nodes []Node, sink Consumer) error {
	prev := src
	for i, n := range nodes {
		if _, err := Connect(prev, n); err != nil {
			return fmt.Errorf("graph: chain link %d: %w", i, err)
		}
		prev = n
	}
	if sink == nil {
		return nil
	}
	if _, err := Connect(prev, sink); err != nil {
		return fmt.Errorf("graph: chain sink: %w", err)
	}
	return nil
}
