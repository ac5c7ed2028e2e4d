// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/gpucore"
)

// Pool errors.
var (
	// ErrAllocation is returned when the device cannot allocate a texture.
	// Callers treat it as a dropped frame.
	ErrAllocation = errors.New("frame: allocation failed")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("frame: pool closed")

	// ErrOverRelease is returned when a resource is released more times
	// than it was acquired.
	ErrOverRelease = errors.New("frame: resource released too many times")
)

// Default retention limits.
const (
	// DefaultMaxIdlePerBucket is the default number of idle resources kept per shape.
	DefaultMaxIdlePerBucket = 4

	// DefaultMaxIdleMB is the default budget for all idle resources together.
	DefaultMaxIdleMB = 256
)

// Key identifies a pool bucket.
type Key struct {
	Width       int
	Height      int
	Orientation Orientation
	TextureOnly bool
	Format      gpucore.TextureFormat
}

// String returns a compact description of the key.
func (k Key) String() string {
	kind := "target"
	if k.TextureOnly {
		kind = "texture"
	}
	return fmt.Sprintf("%dx%d/%v/%v/%s", k.Width, k.Height, k.Orientation, k.Format, kind)
}

func (k Key) bytes() int64 {
	return int64(k.Width) * int64(k.Height) * int64(k.Format.BytesPerPixel())
}

// Config holds retention limits for a Pool.
type Config struct {
	// MaxIdlePerBucket is the number of idle resources kept per key.
	// Defaults to DefaultMaxIdlePerBucket if <= 0.
	MaxIdlePerBucket int

	// MaxIdleBytes bounds the memory held by all idle resources.
	// Defaults to DefaultMaxIdleMB megabytes if <= 0.
	MaxIdleBytes int64
}

// Stats contains pool statistics.
type Stats struct {
	Allocations        uint64
	Reuses             uint64
	Evictions          uint64
	AllocationFailures uint64
	OverReleases       uint64

	Idle      int
	IdleBytes int64
	InUse     int
	Wrapped   int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d in use, %d idle (%d KB), %d wrapped, %d allocs, %d reuses, %d evictions, %d failures]",
		s.InUse, s.Idle, s.IdleBytes/1024, s.Wrapped,
		s.Allocations, s.Reuses, s.Evictions, s.AllocationFailures)
}

// idleEntry tracks an idle resource in its bucket and in the global LRU list.
type idleEntry struct {
	res    *Resource
	bucket *list.Element
	lru    *list.Element
}

// Pool allocates, reuses and reference-counts frame resources.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	device gpucore.Device

	maxIdlePerBucket int
	maxIdleBytes     int64

	// Per-key idle lists (front = most recently released).
	buckets map[Key]*list.List
	// All idle entries (front = most recently released, back = oldest).
	lru       *list.List
	idleBytes int64

	inUse   int
	wrapped int
	stats   Stats
	closed  bool
}

// NewPool creates a pool allocating from device.
func NewPool(device gpucore.Device, config Config) *Pool {
	perBucket := config.MaxIdlePerBucket
	if perBucket <= 0 {
		perBucket = DefaultMaxIdlePerBucket
	}
	maxBytes := config.MaxIdleBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxIdleMB * 1024 * 1024
	}
	return &Pool{
		device:           device,
		maxIdlePerBucket: perBucket,
		maxIdleBytes:     maxBytes,
		buckets:          make(map[Key]*list.List),
		lru:              list.New(),
	}
}

// Device returns the device the pool allocates from.
func (p *Pool) Device() gpucore.Device { return p.device }

// Acquire returns an RGBA resource of the given shape with a reference
// count of one, reusing an idle one when available.
func (p *Pool) Acquire(width, height int, o Orientation, textureOnly bool) (*Resource, error) {
	return p.AcquireKey(Key{Width: width, Height: height, Orientation: o, TextureOnly: textureOnly, Format: gpucore.FormatRGBA8})
}

// AcquireKey is Acquire for an explicit key, including the format.
func (p *Pool) AcquireKey(k Key) (*Resource, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if b := p.buckets[k]; b != nil && b.Len() > 0 {
		entry := b.Front().Value.(*idleEntry)
		p.removeIdleLocked(entry)
		p.inUse++
		p.stats.Reuses++
		p.mu.Unlock()

		res := entry.res
		res.refs.Store(1)
		res.SetTimestamp(NoTimestamp)
		res.SetGeneration(0)
		return res, nil
	}
	p.mu.Unlock()

	tex, err := p.device.CreateTexture(&gpucore.TextureDescriptor{
		Label:        "frame " + k.String(),
		Width:        k.Width,
		Height:       k.Height,
		Format:       k.Format,
		RenderTarget: !k.TextureOnly,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.AllocationFailures++
		return nil, fmt.Errorf("%w: %s: %w", ErrAllocation, k, err)
	}
	if p.closed {
		p.device.DestroyTexture(tex)
		return nil, ErrPoolClosed
	}
	p.inUse++
	p.stats.Allocations++
	return newResource(p, k, tex), nil
}

// Wrap binds externally owned pixel memory as a resource without copying.
// The resource is never pooled: when its count reaches zero the texture
// handle is destroyed and onRelease, if set, is called.
func (p *Pool) Wrap(desc *gpucore.TextureDescriptor, pix []byte, stride int, o Orientation, onRelease func()) (*Resource, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	tex, err := p.device.WrapExternal(desc, pix, stride)
	if err != nil {
		return nil, fmt.Errorf("frame: wrap %dx%d %v: %w", desc.Width, desc.Height, desc.Format, err)
	}
	k := Key{Width: desc.Width, Height: desc.Height, Orientation: o, TextureOnly: !desc.RenderTarget, Format: desc.Format}
	res := newResource(p, k, tex)
	res.external = true
	res.onRelease = onRelease

	p.mu.Lock()
	p.wrapped++
	p.mu.Unlock()
	return res, nil
}

// Release drops one reference. At zero the resource returns to its bucket,
// evicting the oldest idle resources beyond the retention limits.
func (p *Pool) Release(r *Resource) error {
	n := r.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		r.refs.Add(1)
		p.mu.Lock()
		p.stats.OverReleases++
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOverRelease, r.key)
	}

	if r.external {
		p.device.DestroyTexture(r.texture)
		p.mu.Lock()
		p.wrapped--
		p.mu.Unlock()
		if r.onRelease != nil {
			r.onRelease()
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if p.closed {
		p.device.DestroyTexture(r.texture)
		return nil
	}

	b := p.buckets[r.key]
	if b == nil {
		b = list.New()
		p.buckets[r.key] = b
	}
	entry := &idleEntry{res: r}
	entry.bucket = b.PushFront(entry)
	entry.lru = p.lru.PushFront(entry)
	p.idleBytes += r.key.bytes()

	for b.Len() > p.maxIdlePerBucket {
		p.evictLocked(b.Back().Value.(*idleEntry))
	}
	for p.idleBytes > p.maxIdleBytes && p.lru.Len() > 0 {
		p.evictLocked(p.lru.Back().Value.(*idleEntry))
	}
	return nil
}

// removeIdleLocked unlinks an idle entry. Caller must hold mu.
func (p *Pool) removeIdleLocked(e *idleEntry) {
	b := p.buckets[e.res.key]
	b.Remove(e.bucket)
	if b.Len() == 0 {
		delete(p.buckets, e.res.key)
	}
	p.lru.Remove(e.lru)
	p.idleBytes -= e.res.key.bytes()
}

// evictLocked destroys an idle resource. Caller must hold mu.
func (p *Pool) evictLocked(e *idleEntry) {
	p.removeIdleLocked(e)
	p.device.DestroyTexture(e.res.texture)
	p.stats.Evictions++
	vidflow.Logger().Debug("frame: evicted idle resource", "key", e.res.key.String())
}

// IdleCount returns the number of idle resources across all buckets.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}

// BucketIdleCount returns the number of idle resources for k.
func (p *Pool) BucketIdleCount(k Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b := p.buckets[k]; b != nil {
		return b.Len()
	}
	return 0
}

// Purge destroys all idle resources. Resources in use are unaffected.
func (p *Pool) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()
}

func (p *Pool) purgeLocked() {
	for p.lru.Len() > 0 {
		e := p.lru.Back().Value.(*idleEntry)
		p.removeIdleLocked(e)
		p.device.DestroyTexture(e.res.texture)
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = p.lru.Len()
	s.IdleBytes = p.idleBytes
	s.InUse = p.inUse
	s.Wrapped = p.wrapped
	return s
}

// Close destroys all idle resources and rejects further acquisitions.
// Resources still in use are destroyed when their last reference is released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.purgeLocked()
	p.closed = true
	if p.inUse > 0 {
		vidflow.Logger().Warn("frame: pool closed with resources in use", "in_use", p.inUse)
	}
	return nil
}
