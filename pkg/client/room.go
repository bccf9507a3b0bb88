package client

import (
	"context"

	"github.com/liveclass/liveclass/pkg/media"
)

// RoomEvents are the media-room callbacks the orchestrator consumes. All
// callbacks may fire from transport goroutines.
type RoomEvents struct {
	// OnTrack fires when a remote track is subscribed.
	OnTrack func(t RemoteTrack)
	// OnTrackRemoved fires when a remote track is unpublished.
	OnTrackRemoved func(trackID string)
	// OnData delivers side-channel payloads by topic.
	OnData func(topic string, payload []byte)
	// OnDisconnect fires once when the room connection is lost for good
	// (after the transport's own resume attempts).
	OnDisconnect func()
	// OnLocalTrackEnded fires when a published local track stops at the
	// source, e.g. the user ended the screen capture from the OS.
	OnLocalTrackEnded func(trackID string)
}

// MediaRoom is the client side of the media transport. Connect must not
// return before the room connection is fully established.
type MediaRoom interface {
	Connect(ctx context.Context, cred media.Credential, ev RoomEvents) error
	// Publish publishes one local track; source is "camera", "microphone"
	// or "screen". Returns the published track id.
	Publish(ctx context.Context, t LocalTrack, source string) (string, error)
	Unpublish(trackID string) error
	// SetMuted mutes or unmutes the published track of the given kind.
	SetMuted(kind string, muted bool) error
	Disconnect()
}
