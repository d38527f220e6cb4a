// Package config holds the engine's compiled-in defaults and an optional
// YAML override loader, grounded on the pack's own YAML-driven config
// packages (gopkg.in/yaml.v3, decoded with KnownFields(true) so a typo in
// an override file fails loudly instead of being silently ignored).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Thermal holds the frame assembler's tunables. All are constants in
// spec.md §4.3; overriding them is a test/tuning affordance, not part of
// the documented public contract.
type Thermal struct {
	RetryLimit       int           `yaml:"retry_limit"`
	SyncAttemptLimit int           `yaml:"sync_attempt_limit"`
	StaleLimit       int           `yaml:"stale_limit"`
	SyncBackoff      time.Duration `yaml:"sync_backoff"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	PowerPollPeriod  time.Duration `yaml:"power_poll_period"`
	PowerOnSettle    time.Duration `yaml:"power_on_settle"`
}

// Audio holds the strike detector's tunables, matching spec.md §4.4's
// defaults.
type Audio struct {
	BlockSize    int           `yaml:"block_size"`
	QueueSize    int           `yaml:"queue_size"`
	CutoffHz     float64       `yaml:"cutoff_hz"`
	RefractoryS  float64       `yaml:"refractory_s"`
	MinThreshold float32       `yaml:"min_threshold"`
	StartupGrace time.Duration `yaml:"startup_grace"`
}

// Config is the full set of tunables for a Session.
type Config struct {
	Thermal        Thermal       `yaml:"thermal"`
	Audio          Audio         `yaml:"audio"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// Defaults returns the compiled-in defaults from spec.md §4.3/§4.4/§4.5.
func Defaults() Config {
	return Config{
		Thermal: Thermal{
			RetryLimit:       20,
			SyncAttemptLimit: 300,
			StaleLimit:       27,
			SyncBackoff:      10 * time.Millisecond,
			RetryBackoff:     50 * time.Millisecond,
			PowerPollPeriod:  250 * time.Millisecond,
			PowerOnSettle:    1 * time.Second,
		},
		Audio: Audio{
			BlockSize:    2048,
			QueueSize:    256,
			CutoffHz:     15000,
			RefractoryS:  1.0,
			MinThreshold: 0.03,
			StartupGrace: 0,
		},
		StartupTimeout: 5 * time.Second,
	}
}

// Load decodes a YAML override file on top of Defaults() and validates the
// result. Unknown fields in the file are a hard error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes a YAML override from r on top of Defaults(). Tests
// construct readers from string literals instead of files on disk.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg is internally coherent, returning a joined
// error listing every problem found rather than failing on the first.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Thermal.RetryLimit <= 0 {
		errs = append(errs, fmt.Errorf("thermal.retry_limit must be > 0, got %d", cfg.Thermal.RetryLimit))
	}
	if cfg.Thermal.SyncAttemptLimit <= 0 {
		errs = append(errs, fmt.Errorf("thermal.sync_attempt_limit must be > 0, got %d", cfg.Thermal.SyncAttemptLimit))
	}
	if cfg.Thermal.StaleLimit <= 0 {
		errs = append(errs, fmt.Errorf("thermal.stale_limit must be > 0, got %d", cfg.Thermal.StaleLimit))
	}
	if cfg.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size must be > 0, got %d", cfg.Audio.BlockSize))
	}
	if cfg.Audio.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size must be > 0, got %d", cfg.Audio.QueueSize))
	}
	if cfg.Audio.CutoffHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.cutoff_hz must be > 0, got %f", cfg.Audio.CutoffHz))
	}
	if cfg.Audio.RefractoryS < 0 {
		errs = append(errs, fmt.Errorf("audio.refractory_s must be >= 0, got %f", cfg.Audio.RefractoryS))
	}
	if cfg.StartupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("startup_timeout must be > 0, got %s", cfg.StartupTimeout))
	}
	return errors.Join(errs...)
}
