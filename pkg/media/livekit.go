package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
)

// LiveKit implements Provisioner against a LiveKit deployment.
type LiveKit struct {
	conf config.LiveKit
	svc  *lksdk.RoomServiceClient
	log  *logger.Logger
}

func NewLiveKit(conf config.LiveKit, log *logger.Logger) *LiveKit {
	return &LiveKit{
		conf: conf,
		svc:  lksdk.NewRoomServiceClient(httpURL(conf.URL), conf.APIKey, conf.APISecret),
		log:  log,
	}
}

// RoomName maps a session id to its media room.
func RoomName(sessionID string) string { return "meet-" + sessionID }

func (l *LiveKit) EnsureRoom(ctx context.Context, sessionID string) (string, error) {
	name := RoomName(sessionID)
	// CreateRoom returns the existing room unchanged when it already exists;
	// the timeouts let the server garbage-collect it after everyone leaves.
	_, err := l.svc.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:             name,
		EmptyTimeout:     uint32(l.conf.EmptyTimeout / time.Second),
		DepartureTimeout: uint32(l.conf.DepartureTimeout / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("ensure room %s: %w", name, err)
	}
	return name, nil
}

func (l *LiveKit) MintCredential(roomName string, id Identity, grants Grants) (Credential, error) {
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &grants.Publish,
		CanSubscribe:   &grants.Subscribe,
		CanPublishData: &grants.PublishData,
	}
	at := auth.NewAccessToken(l.conf.APIKey, l.conf.APISecret).
		SetVideoGrant(grant).
		SetIdentity(id.ID).
		SetName(id.Name).
		SetMetadata(id.Metadata).
		SetValidFor(l.conf.TokenTTL)
	token, err := at.ToJWT()
	if err != nil {
		return Credential{}, fmt.Errorf("mint credential: %w", err)
	}
	return Credential{
		URL:         l.conf.URL,
		RoomName:    roomName,
		AccessToken: token,
		ExpiresAt:   time.Now().Add(l.conf.TokenTTL),
	}, nil
}

func (l *LiveKit) Relay(ctx context.Context, sessionID, topic string, payload []byte) error {
	_, err := l.svc.SendData(ctx, &livekit.SendDataRequest{
		Room:  RoomName(sessionID),
		Data:  payload,
		Kind:  livekit.DataPacket_RELIABLE,
		Topic: &topic,
	})
	return err
}

// httpURL converts a ws(s) LiveKit URL to the http(s) form the REST-ish
// room service expects.
func httpURL(url string) string {
	switch {
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	}
	return url
}
