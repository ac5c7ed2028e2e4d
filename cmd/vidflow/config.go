package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gogpu/vidflow/capture"
)

// envPrefix prefixes environment overrides, e.g. VIDFLOW_ZERO_COPY=true.
const envPrefix = "VIDFLOW"

var (
	errInvalidFormat   = errors.New("unknown pixel format")
	errInvalidCamera   = errors.New("unknown camera")
	errInvalidLogLevel = errors.New("unknown log level")
)

// config is the resolved configuration of a run.
type config struct {
	Backend  string
	Camera   string
	Device   string
	Width    int
	Height   int
	FPS      int
	Format   capture.PixelFormat
	Buffers  int
	ZeroCopy bool

	Intensity float32

	Duration time.Duration
	Frames   int

	MetricsAddr string

	LogLevel  slog.Level
	LogFormat string
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("backend", "")
	v.SetDefault("camera", "pattern")
	v.SetDefault("device", "")
	v.SetDefault("width", 640)
	v.SetDefault("height", 480)
	v.SetDefault("fps", 30)
	v.SetDefault("format", "nv12")
	v.SetDefault("buffers", 4)
	v.SetDefault("zero-copy", false)
	v.SetDefault("intensity", 0.5)
	v.SetDefault("duration", 5*time.Second)
	v.SetDefault("frames", 0)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("vidflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.vidflow")
	return v
}

// loadConfig reads the optional config file and resolves all keys. A
// missing default config file is not an error; an explicit one is.
func loadConfig(v *viper.Viper) (config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	format, err := parseFormat(v.GetString("format"))
	if err != nil {
		return config{}, err
	}
	level, err := parseLevel(v.GetString("log-level"))
	if err != nil {
		return config{}, err
	}
	cfg := config{
		Backend:     v.GetString("backend"),
		Camera:      strings.ToLower(v.GetString("camera")),
		Device:      v.GetString("device"),
		Width:       v.GetInt("width"),
		Height:      v.GetInt("height"),
		FPS:         v.GetInt("fps"),
		Format:      format,
		Buffers:     v.GetInt("buffers"),
		ZeroCopy:    v.GetBool("zero-copy"),
		Intensity:   float32(v.GetFloat64("intensity")),
		Duration:    v.GetDuration("duration"),
		Frames:      v.GetInt("frames"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    level,
		LogFormat:   strings.ToLower(v.GetString("log-format")),
	}
	if cfg.Camera != "pattern" && cfg.Camera != "gstreamer" {
		return config{}, fmt.Errorf("%w: %q", errInvalidCamera, cfg.Camera)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return config{}, fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Buffers <= 0 {
		return config{}, fmt.Errorf("buffers must be positive, got %d", cfg.Buffers)
	}
	if cfg.Duration <= 0 && cfg.Frames <= 0 {
		return config{}, errors.New("one of duration or frames must be positive")
	}
	return cfg, nil
}

func parseFormat(s string) (capture.PixelFormat, error) {
	switch strings.ToLower(s) {
	case "bgra":
		return capture.PixelFormatBGRA, nil
	case "nv12", "nv12-video":
		return capture.PixelFormatNV12VideoRange, nil
	case "nv12-full":
		return capture.PixelFormatNV12FullRange, nil
	default:
		return 0, fmt.Errorf("%w: %q", errInvalidFormat, s)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidLogLevel, s)
	}
	return level, nil
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
