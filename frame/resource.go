// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"sync/atomic"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/gpucore"
)

// Resource is a GPU-backed frame buffer with its metadata.
//
// Shape (size, orientation, format, texture-only) is fixed at creation.
// Timestamp and generation are set by whichever component produced the
// current contents.
type Resource struct {
	pool    *Pool
	key     Key
	texture gpucore.TextureID

	external  bool
	onRelease func()

	refs       atomic.Int32
	timestamp  atomic.Int64
	generation atomic.Uint64
}

func newResource(p *Pool, k Key, tex gpucore.TextureID) *Resource {
	r := &Resource{pool: p, key: k, texture: tex}
	r.timestamp.Store(noTimestampBits)
	r.refs.Store(1)
	return r
}

// Key returns the pool bucket key of the resource.
func (r *Resource) Key() Key { return r.key }

// Width returns the width in pixels.
func (r *Resource) Width() int { return r.key.Width }

// Height returns the height in pixels.
func (r *Resource) Height() int { return r.key.Height }

// Size returns the stored size.
func (r *Resource) Size() Size { return Size{Width: r.key.Width, Height: r.key.Height} }

// Orientation returns the orientation of the stored content.
func (r *Resource) Orientation() Orientation { return r.key.Orientation }

// TextureOnly reports whether the resource lacks a render target.
func (r *Resource) TextureOnly() bool { return r.key.TextureOnly }

// Format returns the texture format.
func (r *Resource) Format() gpucore.TextureFormat { return r.key.Format }

// Texture returns the device texture handle.
func (r *Resource) Texture() gpucore.TextureID { return r.texture }

// External reports whether the texture aliases memory owned elsewhere.
func (r *Resource) External() bool { return r.external }

// Timestamp returns the capture time of the current contents.
func (r *Resource) Timestamp() Timestamp { return unpackTimestamp(r.timestamp.Load()) }

// SetTimestamp records the capture time of the current contents.
func (r *Resource) SetTimestamp(t Timestamp) { r.timestamp.Store(t.pack()) }

// Generation returns the synchronization generation. Zero means untagged.
func (r *Resource) Generation() uint64 { return r.generation.Load() }

// SetGeneration tags the contents with a synchronization generation.
func (r *Resource) SetGeneration(g uint64) { r.generation.Store(g) }

// RefCount returns the current reference count.
func (r *Resource) RefCount() int32 { return r.refs.Load() }

// Lock adds a reference, typically on behalf of a component the resource
// is about to be handed to.
func (r *Resource) Lock() {
	r.refs.Add(1)
}

// Unlock drops a reference. At zero the resource returns to its pool.
// Over-release is logged and otherwise ignored.
func (r *Resource) Unlock() {
	if err := r.pool.Release(r); err != nil {
		vidflow.Logger().Warn("frame: unlock", "key", r.key.String(), "err", err)
	}
}

// Acquire adds a reference and returns it as a scoped Lease.
func (r *Resource) Acquire() *Lease {
	r.Lock()
	return &Lease{res: r}
}

// Adopt wraps a reference the caller already owns in a Lease.
func Adopt(r *Resource) *Lease {
	return &Lease{res: r}
}

// Lease is one owned reference to a Resource. Release may be called any
// number of times; only the first drops the reference.
type Lease struct {
	res      *Resource
	released atomic.Bool
}

// Resource returns the leased resource.
func (l *Lease) Resource() *Resource { return l.res }

// Release drops the reference once.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.res.Unlock()
	}
}

// Detach hands the reference to the caller without dropping it. The lease
// becomes inert.
func (l *Lease) Detach() *Resource {
	if l.released.CompareAndSwap(false, true) {
		return l.res
	}
	return nil
}
