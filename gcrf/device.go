package gcrf

import (
	"fmt"
	"strings"
)

// Device names where the caller wants the computation placed. The loss is
// evaluated by CPU goroutines either way; an accelerator request is carried
// as an opaque execution context.
type Device string

const (
	DeviceCPU         Device = "cpu"
	DeviceAccelerator Device = "accelerator"
)

// ParseDevice accepts "cpu", "accelerator", "cuda" and "gpu" in any case.
// The empty string selects DeviceCPU.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return DeviceCPU, nil
	case "accelerator", "cuda", "gpu":
		return DeviceAccelerator, nil
	}
	return "", fmt.Errorf("%w: unknown device %q", ErrInvalidConfiguration, s)
}
