package gcrf

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultSpan is the neighbourhood radius LoadConfig uses when a file omits
// "span".
const DefaultSpan = 11

// Config holds the construction parameters of a Loss. Zero kernel, device
// and worker fields select DefaultKernel, DeviceCPU and one worker per CPU.
// Span has no in-code default: New rejects a span below 1.
type Config struct {
	// NumClasses is the number of segmentation classes; it must be >= 1.
	NumClasses int `json:"num_classes"`

	// Span is the neighbourhood radius; offsets range over [-Span, Span].
	Span int `json:"span"`

	Device Device `json:"device"`

	// Kernel bandwidths of the affinity. Zero fields use DefaultKernel.
	Kernel Kernel `json:"kernel"`

	// Workers bounds the goroutines evaluating offsets.
	Workers int `json:"workers"`
}

// WithDefaults returns c with zero kernel, device and worker fields replaced
// by their defaults.
func (c Config) WithDefaults() Config {
	if c.Device == "" {
		c.Device = DeviceCPU
	}
	if c.Kernel.Appearance == 0 {
		c.Kernel.Appearance = DefaultKernel.Appearance
	}
	if c.Kernel.Position == 0 {
		c.Kernel.Position = DefaultKernel.Position
	}
	if c.Kernel.Depth == 0 {
		c.Kernel.Depth = DefaultKernel.Depth
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Validate checks a configuration after defaults have been applied.
func (c Config) Validate() error {
	if c.NumClasses < 1 {
		return fmt.Errorf("%w: num_classes must be >= 1, got %d", ErrInvalidConfiguration, c.NumClasses)
	}
	if c.Span < 1 {
		return fmt.Errorf("%w: span must be >= 1, got %d", ErrInvalidConfiguration, c.Span)
	}
	if _, err := ParseDevice(string(c.Device)); err != nil {
		return err
	}
	bandwidths := []struct {
		name string
		v    float64
	}{
		{"appearance", c.Kernel.Appearance},
		{"position", c.Kernel.Position},
		{"depth", c.Kernel.Depth},
	}
	for _, bw := range bandwidths {
		if math.IsNaN(bw.v) || bw.v <= 0 {
			return fmt.Errorf("%w: %s bandwidth must be > 0, got %v", ErrInvalidConfiguration, bw.name, bw.v)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfiguration, c.Workers)
	}
	return nil
}

// LoadConfig reads a JSON configuration file. An omitted "span" reads as
// DefaultSpan; other omitted fields keep their zero value and pick up
// defaults in New.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Span: DefaultSpan}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.WithDefaults().Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
