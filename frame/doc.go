// Package frame provides reference-counted GPU frame resources and the pool
// that recycles them.
//
// A [Resource] is a texture plus metadata: size, [Orientation], whether it
// can be rendered into, the capture [Timestamp] of the frame it carries,
// and a generation tag used by multi-input operations to match inputs that
// originate from the same captured frame.
//
// # Ownership
//
// Every holder of a resource owns one reference. [Pool.Acquire] returns a
// resource with a reference count of one, owned by the caller. Handing a
// resource to another component transfers a reference: the sender calls
// [Resource.Lock] on behalf of the receiver, and the receiver calls
// [Resource.Unlock] exactly once when done. When the count drops to zero the
// resource returns to an idle bucket of its [Key] instead of being destroyed.
//
// [Lease] is a scoped form of the same contract whose Release is safe to
// call more than once, suitable for defer on every exit path:
//
//	res, err := pool.Acquire(1280, 720, frame.Portrait, false)
//	if err != nil {
//	    return err // allocation failure: drop the frame
//	}
//	lease := frame.Adopt(res)
//	defer lease.Release()
//
// # Retention
//
// Idle resources are kept per bucket, most recently released first. When a
// bucket exceeds [Config.MaxIdlePerBucket], or all idle resources together
// exceed [Config.MaxIdleBytes], the oldest unused resources are destroyed.
package frame
