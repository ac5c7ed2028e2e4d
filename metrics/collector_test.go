package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/vidflow/backend/software"
	"github.com/gogpu/vidflow/capture"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/record"
)

func TestCaptureObserver(t *testing.T) {
	c := NewCollector("")
	c.FrameProcessed(10 * time.Millisecond)
	c.FrameProcessed(20 * time.Millisecond)
	c.FrameDropped(capture.DropBusy)
	c.FrameDropped(capture.DropBusy)
	c.FrameDropped(capture.DropStopped)

	if got := testutil.ToFloat64(c.framesProcessed); got != 2 {
		t.Errorf("processed = %v", got)
	}
	if got := testutil.ToFloat64(c.framesDropped.WithLabelValues("busy")); got != 2 {
		t.Errorf("busy drops = %v", got)
	}
	if got := testutil.ToFloat64(c.framesDropped.WithLabelValues("stopped")); got != 1 {
		t.Errorf("stopped drops = %v", got)
	}
	if n := testutil.CollectAndCount(c.frameLatency); n != 1 {
		t.Errorf("latency histogram series = %d", n)
	}
}

func TestRecordObserver(t *testing.T) {
	c := NewCollector("test")
	c.SampleWritten(record.Sample{Elapsed: 1500 * time.Millisecond})
	c.SampleSkipped(record.SkipDuplicate)

	if got := testutil.ToFloat64(c.samplesWritten); got != 1 {
		t.Errorf("samples = %v", got)
	}
	if got := testutil.ToFloat64(c.recordElapsed); got != 1.5 {
		t.Errorf("elapsed = %v", got)
	}
	if got := testutil.ToFloat64(c.samplesSkipped.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("duplicate skips = %v", got)
	}
}

func TestWatchPool(t *testing.T) {
	dev := software.New()
	defer dev.Close()
	pool := frame.NewPool(dev, frame.Config{})
	defer pool.Close()

	c := NewCollector("")
	if err := c.WatchPool("main", pool); err != nil {
		t.Fatal(err)
	}
	if err := c.WatchPool("main", pool); err == nil {
		t.Error("watching the same pool name twice should fail")
	}

	res, err := pool.Acquire(4, 4, frame.Portrait, false)
	if err != nil {
		t.Fatal(err)
	}
	expected := `
# HELP vidflow_framebuffer_in_use Pooled framebuffers currently referenced
# TYPE vidflow_framebuffer_in_use gauge
vidflow_framebuffer_in_use{pool="main"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "vidflow_framebuffer_in_use"); err != nil {
		t.Error(err)
	}

	res.Unlock()
	expected = `
# HELP vidflow_framebuffer_idle Idle framebuffers kept for reuse
# TYPE vidflow_framebuffer_idle gauge
vidflow_framebuffer_idle{pool="main"} 1
# HELP vidflow_framebuffer_in_use Pooled framebuffers currently referenced
# TYPE vidflow_framebuffer_in_use gauge
vidflow_framebuffer_in_use{pool="main"} 0
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"vidflow_framebuffer_idle", "vidflow_framebuffer_in_use"); err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector("")
	c.FrameProcessed(time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vidflow_capture_frames_processed_total 1") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
}
