// Package config implements AppConfig: the struct of tunables passed to
// the gateway and the recovery manager at startup, parsed from a JSON
// file with environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/gateway"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/recovery"
)

// EmbeddingMemoryMode selects how the gateway schedules embedding work
// relative to generation work.
type EmbeddingMemoryMode string

const (
	CpuParallel EmbeddingMemoryMode = "cpu_parallel"
	GpuParallel EmbeddingMemoryMode = "gpu_parallel"
	Sequential  EmbeddingMemoryMode = "sequential"
)

// AppConfig is the top-level configuration record: gateway model/device
// settings plus recovery-manager tunables.
type AppConfig struct {
	EmbeddingMemoryMode EmbeddingMemoryMode `json:"embedding_memory_mode"`
	ModelPath           string              `json:"model_path"`
	EmbeddingModelPath  string              `json:"embedding_model_path,omitempty"`
	BinaryPath          string              `json:"binary_path"`
	Device              DeviceConfig        `json:"device"`

	Recovery RecoveryConfig `json:"recovery"`
}

// DeviceConfig mirrors gateway.DeviceHint in a JSON-friendly shape.
type DeviceConfig struct {
	Kind  string `json:"kind"` // "auto", "cpu", "gpu"
	Index int    `json:"index,omitempty"`
}

// RecoveryConfig mirrors recovery.Config in a JSON-friendly shape
// (durations as milliseconds, per spec.md §6's field names).
type RecoveryConfig struct {
	Enabled            bool `json:"enabled"`
	MaxAttempts        int  `json:"max_attempts"`
	BackoffBaseMs      int  `json:"backoff_base_ms"`
	BackoffMaxMs       int  `json:"backoff_max_ms"`
	TryAlternatePort   bool `json:"try_alternate_port"`
	AlternatePortRange int  `json:"alternate_port_range,omitempty"`
}

// Default returns the baseline AppConfig: sequential embedding, auto
// device placement, recovery enabled with 3 attempts, a 500 ms base and
// 10 s maximum backoff, and the alternate-port fallback on.
func Default() AppConfig {
	return AppConfig{
		EmbeddingMemoryMode: Sequential,
		Device:              DeviceConfig{Kind: "auto"},
		Recovery: RecoveryConfig{
			Enabled:          true,
			MaxAttempts:      3,
			BackoffBaseMs:    500,
			BackoffMaxMs:     10_000,
			TryAlternatePort: true,
		},
	}
}

// Load reads an AppConfig from path (JSON), then applies environment
// overrides via ApplyEnv. A missing file is not an error: Load returns
// Default with only environment overrides applied.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return AppConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return AppConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overlays ENGINE_-prefixed environment variables onto cfg,
// following the teacher's Default*Config()-plus-overrides idiom rather
// than a full env-to-struct reflection library.
func ApplyEnv(cfg *AppConfig) {
	if v, ok := os.LookupEnv("ENGINE_MODEL_PATH"); ok {
		cfg.ModelPath = v
	}
	if v, ok := os.LookupEnv("ENGINE_EMBEDDING_MODEL_PATH"); ok {
		cfg.EmbeddingModelPath = v
	}
	if v, ok := os.LookupEnv("ENGINE_BINARY_PATH"); ok {
		cfg.BinaryPath = v
	}
	if v, ok := os.LookupEnv("ENGINE_EMBEDDING_MEMORY_MODE"); ok {
		cfg.EmbeddingMemoryMode = EmbeddingMemoryMode(v)
	}
	if v, ok := os.LookupEnv("ENGINE_DEVICE_KIND"); ok {
		cfg.Device.Kind = v
	}
	if v, ok := os.LookupEnv("ENGINE_RECOVERY_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recovery.Enabled = b
		}
	}
	if v, ok := os.LookupEnv("ENGINE_RECOVERY_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.MaxAttempts = n
		}
	}
}

// GatewayConfig translates the device/model fields into the gateway.Config
// used to start the main backend in inference mode. EmbeddingMode is
// always false here: starting the dedicated embedding sidecar (when
// EmbeddingMemoryMode calls for one) goes through EmbeddingSidecarConfig
// instead, never through the main backend's mode flag.
func (c AppConfig) GatewayConfig() gateway.Config {
	return gateway.Config{
		ModelPath:  c.ModelPath,
		BinaryPath: c.BinaryPath,
		Device:     c.Device.deviceHint(),
	}
}

// NeedsEmbeddingSidecar reports whether EmbeddingMemoryMode calls for a
// dedicated embedding server running alongside the main backend.
// Sequential mode never does: it swaps the single backend between
// Inference and Embedding mode on demand instead.
func (c AppConfig) NeedsEmbeddingSidecar() bool {
	return c.EmbeddingMemoryMode != Sequential && c.EmbeddingModelPath != ""
}

// EmbeddingSidecarConfig builds the dedicated embedding sidecar's launch
// config, placing it on CPU for CpuParallel (so the main backend keeps
// the GPU) or GPU for GpuParallel. ok is false when NeedsEmbeddingSidecar
// is false, in which case the caller should rely on the main backend's
// SwitchMode(Embedding) instead.
func (c AppConfig) EmbeddingSidecarConfig(sink event.Sink, logger log.Logger) (gateway.EmbeddingSidecarConfig, bool) {
	if !c.NeedsEmbeddingSidecar() {
		return gateway.EmbeddingSidecarConfig{}, false
	}
	device := "cpu"
	if c.EmbeddingMemoryMode == GpuParallel {
		device = "gpu"
	}
	return gateway.EmbeddingSidecarConfig{
		BinaryPath:     c.BinaryPath,
		Args:           []string{"--model", c.EmbeddingModelPath, "--device", device, "--embedding-only"},
		ReadinessToken: "server listening",
		Sink:           sink,
		Logger:         logger,
	}, true
}

// RecoveryManagerConfig translates RecoveryConfig into a recovery.Config,
// leaving Sink/Logger for the caller to fill in.
func (c AppConfig) RecoveryManagerConfig() recovery.Config {
	return recovery.Config{
		Enabled:            c.Recovery.Enabled,
		MaxAttempts:        c.Recovery.MaxAttempts,
		BackoffBase:        time.Duration(c.Recovery.BackoffBaseMs) * time.Millisecond,
		BackoffMax:         time.Duration(c.Recovery.BackoffMaxMs) * time.Millisecond,
		TryAlternatePort:   c.Recovery.TryAlternatePort,
		AlternatePortRange: c.Recovery.AlternatePortRange,
	}
}

func (d DeviceConfig) deviceHint() gateway.DeviceHint {
	switch d.Kind {
	case "cpu":
		return gateway.DeviceHint{Kind: gateway.DeviceCPU}
	case "gpu":
		return gateway.DeviceHint{Kind: gateway.DeviceGPU, Index: d.Index}
	default:
		return gateway.DeviceHint{Kind: gateway.DeviceAuto}
	}
}

// Validate reports a configuration error, surfaced by cmd/enginectl as
// exit code 2, when required fields are missing or malformed.
func (c AppConfig) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("config: model_path is required")
	}
	switch c.EmbeddingMemoryMode {
	case CpuParallel, GpuParallel, Sequential:
	default:
		return fmt.Errorf("config: invalid embedding_memory_mode %q", c.EmbeddingMemoryMode)
	}
	return nil
}
