package client

import (
	"context"
	"errors"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
	"github.com/pion/webrtc/v4"
)

// lkRoom drives a LiveKit room through the server SDK.
type lkRoom struct {
	log *logger.Logger

	mu     sync.Mutex
	room   *lksdk.Room
	pubs   map[string]*lksdk.LocalTrackPublication // by track sid
	byKind map[string]string                       // kind -> track sid (camera/mic only)
}

func NewLiveKitRoom(log *logger.Logger) MediaRoom {
	return &lkRoom{
		log:    log,
		pubs:   make(map[string]*lksdk.LocalTrackPublication),
		byKind: make(map[string]string),
	}
}

func (r *lkRoom) Connect(ctx context.Context, cred media.Credential, ev RoomEvents) error {
	callback := &lksdk.RoomCallback{
		OnDisconnected: func() {
			if ev.OnDisconnect != nil {
				ev.OnDisconnect()
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if ev.OnTrack == nil {
					return
				}
				ev.OnTrack(RemoteTrack{
					ID:       pub.SID(),
					Identity: string(rp.Identity()),
					Kind:     pub.Kind().String(),
					Screen:   pub.Source() == livekit.TrackSource_SCREEN_SHARE,
					Track:    track,
				})
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, _ *lksdk.RemoteParticipant) {
				if ev.OnTrackRemoved != nil {
					ev.OnTrackRemoved(pub.SID())
				}
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				if ev.OnData == nil {
					return
				}
				if user, ok := data.(*lksdk.UserDataPacket); ok {
					ev.OnData(user.Topic, user.Payload)
				}
			},
		},
	}
	room, err := connectWithin(ctx, func() (*lksdk.Room, error) {
		return lksdk.ConnectToRoomWithToken(cred.URL, cred.AccessToken, callback, lksdk.WithAutoSubscribe(true))
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.room = room
	r.mu.Unlock()
	return nil
}

// connectWithin bounds the blocking SDK connect by the context; a connection
// that completes after the deadline is torn down instead of leaked.
func connectWithin(ctx context.Context, dial func() (*lksdk.Room, error)) (*lksdk.Room, error) {
	done := make(chan struct{})
	var room *lksdk.Room
	var err error
	go func() {
		defer close(done)
		room, err = dial()
	}()
	select {
	case <-done:
		return room, err
	case <-ctx.Done():
		go func() {
			<-done
			if err == nil && room != nil {
				room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

func (r *lkRoom) Publish(ctx context.Context, t LocalTrack, source string) (string, error) {
	r.mu.Lock()
	room := r.room
	r.mu.Unlock()
	if room == nil {
		return "", errors.New("room is not connected")
	}
	track, ok := t.Unwrap().(webrtc.TrackLocal)
	if !ok {
		return "", errors.New("track is not publishable")
	}
	done := make(chan struct{})
	var pub *lksdk.LocalTrackPublication
	var err error
	go func() {
		defer close(done)
		pub, err = room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
			Name:   source,
			Source: trackSource(source),
		})
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.pubs[pub.SID()] = pub
	if source != "screen" {
		r.byKind[t.Kind()] = pub.SID()
	}
	r.mu.Unlock()
	return pub.SID(), nil
}

func (r *lkRoom) Unpublish(trackID string) error {
	r.mu.Lock()
	room := r.room
	delete(r.pubs, trackID)
	for kind, sid := range r.byKind {
		if sid == trackID {
			delete(r.byKind, kind)
		}
	}
	r.mu.Unlock()
	if room == nil {
		return nil
	}
	return room.LocalParticipant.UnpublishTrack(trackID)
}

func (r *lkRoom) SetMuted(kind string, muted bool) error {
	r.mu.Lock()
	sid, ok := r.byKind[kind]
	pub := r.pubs[sid]
	r.mu.Unlock()
	if !ok || pub == nil {
		return errors.New("no published track of kind " + kind)
	}
	pub.SetMuted(muted)
	return nil
}

func (r *lkRoom) Disconnect() {
	r.mu.Lock()
	room := r.room
	r.room = nil
	r.pubs = make(map[string]*lksdk.LocalTrackPublication)
	r.byKind = make(map[string]string)
	r.mu.Unlock()
	if room != nil {
		room.Disconnect()
	}
}

func trackSource(source string) livekit.TrackSource {
	switch source {
	case "screen":
		return livekit.TrackSource_SCREEN_SHARE
	case "microphone":
		return livekit.TrackSource_MICROPHONE
	default:
		return livekit.TrackSource_CAMERA
	}
}
