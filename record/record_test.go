package record

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/vidflow/backend/software"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/processing"
)

func newTestContext(t *testing.T, opts ...software.Option) *processing.Context {
	t.Helper()
	dev := software.New(opts...)
	c, err := processing.New(dev)
	if err != nil {
		t.Fatalf("processing.New: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		dev.Close()
	})
	return c
}

// deliver pushes a solid red 2x2 frame stamped with ts into sink on the
// processing stream.
func deliver(t *testing.T, ctx *processing.Context, sink *Sink, ts frame.Timestamp) {
	t.Helper()
	err := ctx.RunSync(func() {
		res, err := ctx.Pool().Acquire(2, 2, frame.Portrait, true)
		if err != nil {
			t.Error(err)
			return
		}
		pix := make([]byte, 2*2*4)
		for i := 0; i < len(pix); i += 4 {
			pix[i], pix[i+3] = 255, 255
		}
		if err := ctx.Device().WriteTexture(res.Texture(), pix, 8); err != nil {
			t.Error(err)
		}
		res.SetTimestamp(ts)
		sink.Deliver(res, 0)
	})
	if err != nil {
		t.Fatal(err)
	}
}

type samples struct {
	mu     sync.Mutex
	got    []Sample
	retain bool
}

func (s *samples) onBuffer(smp Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retain {
		smp.Buffer.Retain()
	}
	s.got = append(s.got, smp)
}

func (s *samples) times() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.got))
	for i, smp := range s.got {
		out[i] = smp.Timestamp.Duration()
	}
	return out
}

func newSink(t *testing.T, ctx *processing.Context, pool BufferPool, out *samples, zeroCopy bool, opts ...Option) *Sink {
	t.Helper()
	sink, err := NewSink(ctx, Config{
		Width: 2, Height: 2,
		Pool:     pool,
		OnBuffer: out.onBuffer,
		ZeroCopy: zeroCopy,
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return sink
}

func ms(n int) frame.Timestamp { return frame.At(time.Duration(n) * time.Millisecond) }

func TestMemoryPool(t *testing.T) {
	p := NewBufferPool(2, 1, 2)
	a, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	a.take()
	b, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	b.take()
	if _, err := p.Get(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("third Get = %v, want ErrPoolExhausted", err)
	}
	if a.Stride != 8 || len(a.Pix) != 8 {
		t.Errorf("buffer layout stride=%d len=%d", a.Stride, len(a.Pix))
	}

	a.Retain()
	a.Release()
	if p.Outstanding() != 2 {
		t.Fatal("retained buffer returned early")
	}
	a.Release()
	if p.Outstanding() != 1 {
		t.Errorf("Outstanding = %d after release", p.Outstanding())
	}
	a.Release()
	if p.Outstanding() != 1 || a.RefCount() != 0 {
		t.Error("over-release returned the buffer twice")
	}

	c, err := p.Get()
	if err != nil || c != a {
		t.Errorf("Get after release = %p, %v; want reuse of %p", c, err, a)
	}
	if p.Allocated() != 2 {
		t.Errorf("Allocated = %d", p.Allocated())
	}
}

func TestNewSinkValidation(t *testing.T) {
	ctx := newTestContext(t)
	pool := NewBufferPool(2, 2, 1)
	noop := func(Sample) {}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{Pool: pool, OnBuffer: noop}},
		{"no pool", Config{Width: 2, Height: 2, OnBuffer: noop}},
		{"no callback", Config{Width: 2, Height: 2, Pool: pool}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSink(ctx, tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewSink = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLifecycleErrors(t *testing.T) {
	ctx := newTestContext(t)
	sink := newSink(t, ctx, NewBufferPool(2, 2, 1), &samples{}, false)

	if err := sink.StopRecording(nil); !errors.Is(err, ErrNotRecording) {
		t.Errorf("StopRecording idle = %v", err)
	}
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}
	first := sink.SessionID()
	if err := sink.StartRecording(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second StartRecording = %v", err)
	}
	if err := sink.StopRecording(nil); err != nil {
		t.Fatal(err)
	}
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if sink.SessionID() == first {
		t.Error("session ID not renewed")
	}
	_ = sink.StopRecording(nil)
}

func TestBufferSizeMismatch(t *testing.T) {
	t.Run("zero-copy", func(t *testing.T) {
		ctx := newTestContext(t)
		pool := NewBufferPool(4, 4, 1)
		sink := newSink(t, ctx, pool, &samples{}, true)

		if err := sink.StartRecording(); !errors.Is(err, ErrBufferSize) {
			t.Fatalf("StartRecording = %v, want ErrBufferSize", err)
		}
		if sink.Recording() {
			t.Error("sink recording after a failed bind")
		}
		if n := pool.Outstanding(); n != 0 {
			t.Errorf("Outstanding = %d, buffer not returned", n)
		}
	})

	t.Run("read-back", func(t *testing.T) {
		ctx := newTestContext(t)
		pool := NewBufferPool(4, 4, 1)
		out := &samples{}
		sink := newSink(t, ctx, pool, out, false)
		if err := sink.StartRecording(); err != nil {
			t.Fatal(err)
		}
		deliver(t, ctx, sink, ms(1))
		if len(out.times()) != 0 {
			t.Error("sample written into a mismatched buffer")
		}
		if got := sink.Stats().Skipped[SkipRender]; got != 1 {
			t.Errorf("render skips = %d, want 1", got)
		}
		if n := pool.Outstanding(); n != 0 {
			t.Errorf("Outstanding = %d, buffer not returned", n)
		}
		_ = sink.StopRecording(nil)
	})
}

func TestNotRecordingReleasesFrame(t *testing.T) {
	ctx := newTestContext(t)
	out := &samples{}
	sink := newSink(t, ctx, NewBufferPool(2, 2, 1), out, false)

	deliver(t, ctx, sink, ms(1))
	if len(out.times()) != 0 {
		t.Error("stopped sink produced a sample")
	}
	if got := sink.Stats().Skipped[SkipNotRecording]; got != 1 {
		t.Errorf("not-recording skips = %d", got)
	}
	if n := ctx.Pool().Stats().InUse; n != 0 {
		t.Errorf("InUse = %d, frame leaked", n)
	}
}

func TestDuplicateTimestamps(t *testing.T) {
	ctx := newTestContext(t)
	out := &samples{}
	sink := newSink(t, ctx, NewBufferPool(2, 2, 2), out, false)
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}

	deliver(t, ctx, sink, ms(10))
	deliver(t, ctx, sink, ms(10))
	deliver(t, ctx, sink, ms(20))
	deliver(t, ctx, sink, ms(15))
	deliver(t, ctx, sink, frame.NoTimestamp)

	got := out.times()
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("accepted %v, want %v", got, want)
	}
	st := sink.Stats()
	if st.Written != 2 || st.Skipped[SkipDuplicate] != 2 || st.Skipped[SkipNoTimestamp] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Elapsed != 10*time.Millisecond {
		t.Errorf("Elapsed = %v", st.Elapsed)
	}
	if out.got[0].Elapsed != 0 || out.got[1].Elapsed != 10*time.Millisecond {
		t.Errorf("sample elapsed %v, %v", out.got[0].Elapsed, out.got[1].Elapsed)
	}
	_ = sink.StopRecording(nil)
}

func TestSkippedBufferDoesNotAdvanceClock(t *testing.T) {
	ctx := newTestContext(t)
	pool := NewBufferPool(2, 2, 1)
	out := &samples{retain: true}
	sink := newSink(t, ctx, pool, out, false)
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}

	deliver(t, ctx, sink, ms(1))
	// The consumer holds the only buffer.
	deliver(t, ctx, sink, ms(2))
	if got := sink.Stats().Skipped[SkipNoBuffer]; got != 1 {
		t.Fatalf("no-buffer skips = %d", got)
	}

	out.got[0].Buffer.Release()
	deliver(t, ctx, sink, ms(2))

	got := out.times()
	if len(got) != 2 || got[1] != 2*time.Millisecond {
		t.Fatalf("accepted %v; the retried timestamp must not count as a duplicate", got)
	}
	out.got[1].Buffer.Release()
	if pool.Outstanding() != 0 {
		t.Errorf("Outstanding = %d", pool.Outstanding())
	}
	_ = sink.StopRecording(nil)
}

func TestOutputPaths(t *testing.T) {
	tests := []struct {
		name     string
		cache    bool
		zeroCopy bool
		wantZero bool
	}{
		{"read-back", true, false, false},
		{"zero copy", true, true, true},
		{"zero copy unsupported", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext(t, software.WithTextureCache(tt.cache))
			pool := NewBufferPool(2, 2, 2)
			out := &samples{}
			var pixels [][4]byte
			sink, err := NewSink(ctx, Config{
				Width: 2, Height: 2,
				Pool: pool,
				OnBuffer: func(s Sample) {
					pixels = append(pixels, s.Buffer.At(1, 1))
					out.onBuffer(s)
				},
				ZeroCopy: tt.zeroCopy,
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := sink.StartRecording(); err != nil {
				t.Fatal(err)
			}
			if sink.ZeroCopy() != tt.wantZero {
				t.Fatalf("ZeroCopy = %v, want %v", sink.ZeroCopy(), tt.wantZero)
			}

			deliver(t, ctx, sink, ms(1))
			deliver(t, ctx, sink, ms(2))

			if len(out.got) != 2 {
				t.Fatalf("got %d samples", len(out.got))
			}
			for i, px := range pixels {
				if px != [4]byte{0, 0, 255, 255} {
					t.Errorf("sample %d pixel = %v, want BGRA red", i, px)
				}
			}
			sameBuffer := out.got[0].Buffer == out.got[1].Buffer
			if tt.wantZero {
				if !sameBuffer || pool.Outstanding() != 1 {
					t.Errorf("zero copy: same buffer %v, outstanding %d", sameBuffer, pool.Outstanding())
				}
			} else if pool.Outstanding() != 0 {
				t.Errorf("read-back kept %d buffers", pool.Outstanding())
			}

			done := make(chan struct{})
			if err := sink.StopRecording(func() { close(done) }); err != nil {
				t.Fatal(err)
			}
			<-done
			if pool.Outstanding() != 0 {
				t.Errorf("Outstanding = %d after stop", pool.Outstanding())
			}
			st := ctx.Pool().Stats()
			if st.InUse != 0 || st.Wrapped != 0 {
				t.Errorf("frame pool after stop: %v", st)
			}
		})
	}
}

func TestZeroCopySkipsWhileBufferHeld(t *testing.T) {
	ctx := newTestContext(t)
	out := &samples{retain: true}
	sink := newSink(t, ctx, NewBufferPool(2, 2, 1), out, true)
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}
	deliver(t, ctx, sink, ms(1))
	deliver(t, ctx, sink, ms(2))
	if len(out.got) != 1 || sink.Stats().Skipped[SkipNoBuffer] != 1 {
		t.Fatalf("samples=%d stats=%+v", len(out.got), sink.Stats())
	}
	out.got[0].Buffer.Release()
	deliver(t, ctx, sink, ms(2))
	if len(out.got) != 2 {
		t.Errorf("samples = %d after the consumer let go", len(out.got))
	}
	out.got[1].Buffer.Release()
	_ = sink.StopRecording(nil)
}

func TestStopWaitsForInFlightFrame(t *testing.T) {
	ctx := newTestContext(t)
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	sink, err := NewSink(ctx, Config{
		Width: 2, Height: 2,
		Pool:      NewBufferPool(2, 2, 1),
		OnBuffer:  func(Sample) { record("buffer") },
		OnDrained: func() { record("drained") },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}

	block := make(chan struct{})
	ctx.RunAsync(func() { <-block })
	// The frame is admitted before StopRecording is called.
	ctx.RunAsync(func() {
		res, err := ctx.Pool().Acquire(2, 2, frame.Portrait, true)
		if err != nil {
			t.Error(err)
			return
		}
		res.SetTimestamp(ms(5))
		sink.Deliver(res, 0)
	})

	complete := make(chan struct{})
	stopped := make(chan error, 1)
	go func() {
		stopped <- sink.StopRecording(func() {
			record("complete")
			close(complete)
		})
	}()
	close(block)

	select {
	case <-complete:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never ran")
	}
	if err := <-stopped; err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"buffer", "drained", "complete"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

type countingObserver struct {
	written int
	skipped map[SkipReason]int
}

func (o *countingObserver) SampleWritten(Sample) { o.written++ }
func (o *countingObserver) SampleSkipped(r SkipReason) {
	if o.skipped == nil {
		o.skipped = make(map[SkipReason]int)
	}
	o.skipped[r]++
}

func TestObserver(t *testing.T) {
	ctx := newTestContext(t)
	obs := &countingObserver{}
	sink := newSink(t, ctx, NewBufferPool(2, 2, 1), &samples{}, false, WithObserver(obs))
	if err := sink.StartRecording(); err != nil {
		t.Fatal(err)
	}
	deliver(t, ctx, sink, ms(1))
	deliver(t, ctx, sink, ms(1))
	if err := ctx.Drain(); err != nil {
		t.Fatal(err)
	}
	if obs.written != 1 || obs.skipped[SkipDuplicate] != 1 {
		t.Errorf("observer written=%d skipped=%v", obs.written, obs.skipped)
	}
	if sink.Stats().String() == "" {
		t.Error("empty stats string")
	}
	_ = sink.StopRecording(nil)
}
