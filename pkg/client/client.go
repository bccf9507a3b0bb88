// Package client is the session orchestrator: a state machine driving the
// join/publish/reconnect lifecycle against the signaling gateway and the
// media room, merging the two event delivery paths into one deduplicated
// stream for the UI.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/canvas"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
)

var (
	ErrNotConnected   = errors.New("not connected to a session")
	ErrMalformedReply = errors.New("malformed gateway reply")
)

type SessionState int32

const (
	StateIdle SessionState = iota
	StateJoining
	StateConnected
	StateReconnecting
	StateLeft
	StateFatal
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateLeft:
		return "left"
	default:
		return "fatal"
	}
}

// Signaling is the packet connection to the gateway; satisfied by com.Client.
type Signaling interface {
	Call(t string, payload any) (com.In, error)
	Notify(t string, payload any)
	OnPacket(fn func(com.In))
	Listen()
	Wait() chan struct{}
	Close()
}

// Dialer opens a fresh signaling connection.
type Dialer func() (Signaling, error)

// Events are the UI callbacks. All fields are optional; callbacks fire from
// transport goroutines.
type Events struct {
	OnState         func(SessionState)
	OnChat          func(api.ChatBroadcast)
	OnUserJoined    func(api.UserJoinedEvent)
	OnUserLeft      func(api.UserLeftEvent)
	OnParticipants  func(api.ParticipantsReply)
	OnHistory       func(api.HistoryReply)
	OnScreenShare   func(api.ScreenShareEvent)
	OnMediaToggled  func(api.MediaToggledEvent)
	OnStream        func(*Stream)
	OnStreamRemoved func(StreamKey)
	OnFatal         func(message string)
}

// Orchestrator drives one participant through a session:
// idle → joining → connected → reconnecting → left|fatal.
type Orchestrator struct {
	conf    config.Client
	log     *logger.Logger
	dial    Dialer
	capture Capture
	room    MediaRoom
	creds   *Credentials
	events  Events

	dedup    *Dedup
	debounce *debouncer
	streams  *Streams

	// whiteboard: the mirror log accumulates every operation seen for this
	// session; the engine replays it when the canvas is opened.
	engine     *canvas.Engine
	canvasLog  *canvas.Log
	canvasSeen map[canvas.Key]struct{}
	canvasMeta canvas.Metadata
	canvasMu   sync.Mutex

	mu           sync.Mutex
	state        SessionState
	sessionID    string
	userID       string
	token        string
	sig          Signaling
	sigGen       int // invalidates watchers of replaced connections
	localTracks  []LocalTrack
	published    []string // published track ids
	leaving      bool
	reconnecting bool
	sharing      bool
	shareSeq     int
	shareTrack   string
	shareLocal   LocalTrack
	audioOn      bool
	videoOn      bool

	sleep func(time.Duration)
	now   func() time.Time
}

func New(conf config.Client, token string, dial Dialer, capture Capture, room MediaRoom, creds *Credentials, events Events, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		conf:       conf,
		log:        log,
		dial:       dial,
		capture:    capture,
		room:       room,
		creds:      creds,
		events:     events,
		dedup:      NewDedup(conf.DedupCap, conf.DedupTTL),
		debounce:   newDebouncer(conf.DebounceWindow),
		streams:    NewStreams(),
		canvasLog:  canvas.NewLog(),
		canvasSeen: make(map[canvas.Key]struct{}),
		token:      token,
		audioOn:    true,
		videoOn:    true,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

func (o *Orchestrator) State() SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s SessionState) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	o.mu.Unlock()
	if changed && o.events.OnState != nil {
		o.events.OnState(s)
	}
}

func (o *Orchestrator) fatal(msg string) {
	o.setState(StateFatal)
	o.log.Error().Msgf("fatal: %v", msg)
	if o.events.OnFatal != nil {
		o.events.OnFatal(msg)
	}
}

// Join runs the whole join sequence; it returns once the media room reports
// fully established (tracks flushed), not merely requested.
func (o *Orchestrator) Join(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	if o.state != StateIdle && o.state != StateLeft {
		o.mu.Unlock()
		return fmt.Errorf("join in state %v", o.state)
	}
	o.sessionID = sessionID
	o.leaving = false
	o.mu.Unlock()
	o.setState(StateJoining)

	tracks, err := o.capture.Acquire()
	if err != nil {
		o.fatal(captureMessage(err))
		return err
	}
	o.mu.Lock()
	o.localTracks = tracks
	o.mu.Unlock()

	if err := o.connect(ctx, sessionID); err != nil {
		o.capture.Release()
		return err
	}
	o.setState(StateConnected)
	return nil
}

// connect dials signaling, performs the join handshake, connects the media
// room with the returned credential and publishes local tracks. Shared by
// the initial join and every reconnection attempt.
func (o *Orchestrator) connect(ctx context.Context, sessionID string) error {
	sig, err := o.dial()
	if err != nil {
		o.fatal("could not reach the meeting server")
		return err
	}
	sig.OnPacket(o.onPacket)
	sig.Listen()

	reply, err := sig.Call(api.JoinRoom, api.JoinRoomRequest{SessionID: sessionID, Token: o.token})
	if err != nil {
		sig.Close()
		o.fatal("join request failed")
		return err
	}
	if reply.T == api.JoinRoomError {
		sig.Close()
		msg := "join rejected"
		if e := api.Unwrap[api.ErrorReply](reply.Payload); e != nil {
			msg = e.Message
		}
		o.fatal(msg)
		return errors.New(msg)
	}
	success := api.Unwrap[api.JoinRoomSuccessReply](reply.Payload)
	if success == nil {
		sig.Close()
		o.fatal("malformed join reply")
		return errors.New("malformed join reply")
	}

	o.mu.Lock()
	o.sig = sig
	o.sigGen++
	gen := o.sigGen
	o.userID = success.UserID
	if o.engine == nil {
		o.engine = canvas.NewEngine(success.UserID, o.emitCanvasOp, o.emitCanvasClear)
	}
	o.mu.Unlock()

	cred := credentialFrom(success.LiveKit)
	o.creds.Cache(cred)

	roomCtx, cancel := context.WithTimeout(ctx, o.conf.ConnectTimeout)
	defer cancel()
	if err := o.room.Connect(roomCtx, o.creds.Cached(), RoomEvents{
		OnTrack:           o.onRemoteTrack,
		OnTrackRemoved:    o.onRemoteTrackRemoved,
		OnData:            o.onData,
		OnDisconnect:      o.onConnectionLost, // media-only drop recovers too
		OnLocalTrackEnded: o.onLocalTrackEnded,
	}); err != nil {
		sig.Close()
		o.fatal("media room unavailable")
		return err
	}
	o.publishLocal(ctx)

	go o.watch(sig, gen)
	return nil
}

// publishLocal publishes camera and microphone, each bounded by the publish
// timeout. A single track failing is logged and skipped; the join proceeds.
func (o *Orchestrator) publishLocal(ctx context.Context) {
	o.mu.Lock()
	tracks := append([]LocalTrack(nil), o.localTracks...)
	o.mu.Unlock()
	for _, t := range tracks {
		source := "camera"
		if t.Kind() == "audio" {
			source = "microphone"
		}
		pubCtx, cancel := context.WithTimeout(ctx, o.conf.PublishTimeout)
		id, err := o.room.Publish(pubCtx, t, source)
		cancel()
		if err != nil {
			o.log.Warn().Err(err).Msgf("publish %v", source)
			continue
		}
		o.mu.Lock()
		o.published = append(o.published, id)
		o.mu.Unlock()
	}
}

// watch waits for the signaling transport to drop and starts reconnection;
// generation guards watchers of connections that were already replaced.
func (o *Orchestrator) watch(sig Signaling, gen int) {
	<-sig.Wait()
	o.mu.Lock()
	stale := gen != o.sigGen || o.leaving
	o.mu.Unlock()
	if stale {
		return
	}
	o.onConnectionLost()
}

// Leave tears the session down: it cancels any pending reconnection and
// debounced toggles, unpublishes and stops all local tracks, clears the
// dedup cache and closes both transports. Also invoked by unmount-style
// disconnects, so every step must run regardless of how we got here.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	if o.leaving {
		o.mu.Unlock()
		return
	}
	o.leaving = true
	sig := o.sig
	sessionID := o.sessionID
	published := append([]string(nil), o.published...)
	o.published = nil
	o.mu.Unlock()

	o.debounce.Stop()
	if sig != nil {
		sig.Notify(api.LeaveRoom, api.LeaveRoomRequest{SessionID: sessionID})
	}
	for _, id := range published {
		_ = o.room.Unpublish(id)
	}
	o.capture.Release()
	o.room.Disconnect()
	o.dedup.Clear()
	o.streams.Clear()
	o.canvasMu.Lock()
	o.canvasLog.Reset()
	o.canvasSeen = make(map[canvas.Key]struct{})
	o.canvasMu.Unlock()
	if o.engine != nil {
		o.engine.Deactivate()
	}
	if sig != nil {
		sig.Close()
	}
	o.setState(StateLeft)
}

func captureMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "camera/microphone access was denied; allow it in your system settings and rejoin"
	case errors.Is(err, ErrNoDevice):
		return "no camera or microphone was found; connect a device and rejoin"
	case errors.Is(err, ErrDeviceBusy):
		return "your camera or microphone is in use by another application"
	case errors.Is(err, ErrBadConstraints):
		return "your device does not support the required capture settings"
	default:
		return "could not access your camera or microphone"
	}
}

func credentialFrom(info api.LiveKitInfo) media.Credential {
	return media.Credential{
		URL:         info.URL,
		RoomName:    info.RoomName,
		AccessToken: info.AccessToken,
	}
}
