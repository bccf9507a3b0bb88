//go:build !linux || !cgo

package client

import "github.com/liveclass/liveclass/pkg/logger"

// Capture drivers are wired for Linux only; other platforms get a stub so
// the client still builds for signaling-only use.
func NewDeviceCapture(*logger.Logger) (Capture, error) {
	return nil, ErrNoDevice
}
