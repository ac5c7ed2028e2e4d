package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/vidflow"
	"github.com/gogpu/vidflow/backend"
	_ "github.com/gogpu/vidflow/backend/software"
	"github.com/gogpu/vidflow/capture"
	"github.com/gogpu/vidflow/filters"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/gpucore"
	"github.com/gogpu/vidflow/graph"
	"github.com/gogpu/vidflow/metrics"
	"github.com/gogpu/vidflow/processing"
	"github.com/gogpu/vidflow/record"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture, beautify and record until the duration or frame limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			vidflow.SetLogger(newLogger(cfg, cmd.ErrOrStderr()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := run(ctx, cfg)
			if err != nil {
				return err
			}
			sum.print(cmd.OutOrStdout())
			return nil
		},
	}

	f := cmd.Flags()
	f.String("backend", "", "device backend (default: best available)")
	f.String("camera", "pattern", "camera: pattern or gstreamer")
	f.String("device", "", "capture device for the gstreamer camera, or \"test\"")
	f.Int("width", 640, "capture and recording width")
	f.Int("height", 480, "capture and recording height")
	f.Int("fps", 30, "capture frame rate")
	f.String("format", "nv12", "pattern camera pixel format: bgra, nv12, nv12-full")
	f.Int("buffers", 4, "recording buffer pool capacity")
	f.Bool("zero-copy", false, "render straight into recording buffers when the device allows it")
	f.Float32("intensity", 0.5, "beautify smoothing intensity, 0 to 1")
	f.Duration("duration", 5*time.Second, "stop after this long (0 disables)")
	f.Int("frames", 0, "stop after this many recorded frames (0 disables)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// summary is what a run reports when it stops.
type summary struct {
	Backend string
	Session string
	Capture capture.Stats
	Record  record.Stats
	Pool    frame.Stats
	Bytes   uint64
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "backend:  %s\n", s.Backend)
	fmt.Fprintf(w, "session:  %s\n", s.Session)
	fmt.Fprintf(w, "capture:  %s\n", s.Capture)
	fmt.Fprintf(w, "record:   %s\n", s.Record)
	fmt.Fprintf(w, "pool:     %s\n", s.Pool)
	fmt.Fprintf(w, "bytes:    %d\n", s.Bytes)
}

func openDevice(name string) (gpucore.Device, string, error) {
	if name == "" {
		return backend.Default()
	}
	dev, err := backend.Open(name)
	return dev, name, err
}

// run wires camera -> capture.Source -> Beautify -> record.Sink and records
// until ctx is done, the duration passes or the frame limit is reached.
func run(ctx context.Context, cfg config) (summary, error) {
	log := vidflow.Logger()

	dev, name, err := openDevice(cfg.Backend)
	if err != nil {
		return summary{}, err
	}
	log.Info("vidflow: device selected", "backend", name, "texture_cache", dev.SupportsTextureCache())

	pctx, err := processing.New(dev)
	if err != nil {
		dev.Close()
		return summary{}, err
	}
	defer func() {
		if err := pctx.Close(); err != nil {
			log.Warn("vidflow: close processing context", "err", err)
		}
		dev.Close()
	}()

	collector := metrics.NewCollector(metrics.DefaultNamespace)
	if err := collector.WatchPool("processing", pctx.Pool()); err != nil {
		return summary{}, err
	}
	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, collector.Handler())
		if err != nil {
			return summary{}, err
		}
		defer shutdown()
	}

	camera, err := newCamera(cfg)
	if err != nil {
		return summary{}, err
	}
	src := capture.NewSource(pctx, camera,
		capture.WithObserver(collector),
		capture.WithBenchmark(capture.DefaultFramesToIgnore),
	)
	beautify, err := filters.NewBeautify(pctx)
	if err != nil {
		return summary{}, err
	}
	beautify.SetIntensity(cfg.Intensity)

	var (
		written  atomic.Int64
		bytes    atomic.Uint64
		limit    = make(chan struct{})
		limitHit sync.Once
	)
	sink, err := record.NewSink(pctx, record.Config{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Pool:     record.NewBufferPool(cfg.Width, cfg.Height, cfg.Buffers),
		ZeroCopy: cfg.ZeroCopy,
		OnBuffer: func(s record.Sample) {
			bytes.Add(uint64(len(s.Buffer.Pix)))
			if n := written.Add(1); cfg.Frames > 0 && n >= int64(cfg.Frames) {
				limitHit.Do(func() { close(limit) })
			}
		},
	}, record.WithObserver(collector))
	if err != nil {
		return summary{}, err
	}

	if err := graph.Chain(src, []graph.Node{beautify}, sink); err != nil {
		return summary{}, err
	}

	if err := sink.StartRecording(); err != nil {
		return summary{}, err
	}
	if err := src.Start(ctx); err != nil {
		_ = sink.StopRecording(nil)
		return summary{}, err
	}
	log.Info("vidflow: running",
		"capture_session", src.SessionID(),
		"record_session", sink.SessionID(),
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"zero_copy", sink.ZeroCopy())

	var timeout <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-limit:
	}

	if err := src.Stop(); err != nil {
		log.Warn("vidflow: stop capture", "err", err)
	}
	drained := make(chan struct{})
	if err := sink.StopRecording(func() { close(drained) }); err != nil {
		return summary{}, err
	}
	<-drained
	if err := pctx.Drain(); err != nil {
		return summary{}, err
	}

	return summary{
		Backend: name,
		Session: sink.SessionID().String(),
		Capture: src.Stats(),
		Record:  sink.Stats(),
		Pool:    pctx.Pool().Stats(),
		Bytes:   bytes.Load(),
	}, nil
}

// serveMetrics serves h on addr under /metrics and returns a shutdown func.
func serveMetrics(addr string, h http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			vidflow.Logger().Warn("vidflow: metrics server", "err", err)
		}
	}()
	vidflow.Logger().Info("vidflow: serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
