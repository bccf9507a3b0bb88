package client

import (
	"errors"
	"strings"
)

// Local device errors are classified so the UI can show a specific
// remediation message instead of a generic failure.
var (
	ErrPermissionDenied = errors.New("camera/microphone permission denied")
	ErrNoDevice         = errors.New("no camera or microphone found")
	ErrDeviceBusy       = errors.New("camera or microphone is in use by another application")
	ErrBadConstraints   = errors.New("requested media constraints are not supported")
)

// LocalTrack is a captured local media track ready for publishing.
type LocalTrack interface {
	ID() string
	Kind() string // audio|video
	// Unwrap exposes the transport-level track for the room implementation.
	Unwrap() any
	Close() error
}

// Capture acquires local media. Acquire returns the camera/microphone
// tracks; AcquireScreen returns a distinct capture source for screen
// sharing, published as a separate track.
type Capture interface {
	Acquire() ([]LocalTrack, error)
	AcquireScreen() (LocalTrack, error)
	Release()
}

// classifyCaptureErr maps driver errors onto the classified taxonomy.
func classifyCaptureErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return ErrPermissionDenied
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return ErrDeviceBusy
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no device") ||
		strings.Contains(msg, "no such"):
		return ErrNoDevice
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "unsupported"):
		return ErrBadConstraints
	default:
		return err
	}
}
