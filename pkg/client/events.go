package client

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
)

// onPacket handles server-pushed signaling events; correlated replies are
// consumed by Call and never reach here.
func (o *Orchestrator) onPacket(in com.In) {
	switch in.T {
	case api.ChatMessage:
		if b := api.Unwrap[api.ChatBroadcast](in.Payload); b != nil {
			o.deliverChat(*b)
		}
	case api.UserJoined:
		if ev := api.Unwrap[api.UserJoinedEvent](in.Payload); ev != nil && o.events.OnUserJoined != nil {
			o.events.OnUserJoined(*ev)
		}
	case api.UserLeft:
		if ev := api.Unwrap[api.UserLeftEvent](in.Payload); ev != nil {
			o.streams.RemoveIdentity(ev.UserID)
			if o.events.OnUserLeft != nil {
				o.events.OnUserLeft(*ev)
			}
		}
	case api.SessionParticipants:
		if ev := api.Unwrap[api.ParticipantsReply](in.Payload); ev != nil && o.events.OnParticipants != nil {
			o.events.OnParticipants(*ev)
		}
	case api.MessageHistory:
		if ev := api.Unwrap[api.HistoryReply](in.Payload); ev != nil {
			o.deliverHistory(*ev)
		}
	case api.ScreenShareStarted, api.ScreenShareStopped:
		if ev := api.Unwrap[api.ScreenShareEvent](in.Payload); ev != nil && o.events.OnScreenShare != nil {
			o.events.OnScreenShare(*ev)
		}
	case api.MediaToggled:
		if ev := api.Unwrap[api.MediaToggledEvent](in.Payload); ev != nil && o.events.OnMediaToggled != nil {
			o.events.OnMediaToggled(*ev)
		}
	case api.CanvasDraw:
		if ev := api.Unwrap[api.CanvasEvent](in.Payload); ev != nil {
			o.applyCanvasEvent(*ev)
		}
	case api.CanvasClear:
		if ev := api.Unwrap[api.CanvasClearEvent](in.Payload); ev != nil {
			o.applyCanvasClear(*ev)
		}
	default:
		o.log.Debug().Msgf("unhandled packet %v", in.T)
	}
}

// onData handles side-channel payloads from the media room; the same events
// may also arrive over signaling, in any order or not at all, so everything
// funnels through the dedup/idempotency boundary.
func (o *Orchestrator) onData(topic string, payload []byte) {
	switch topic {
	case api.TopicChat:
		var b api.ChatBroadcast
		if json.Unmarshal(payload, &b) == nil {
			o.deliverChat(b)
		}
	case api.TopicScreenShare:
		var ev api.ScreenShareEvent
		if json.Unmarshal(payload, &ev) == nil && o.events.OnScreenShare != nil {
			o.events.OnScreenShare(ev)
		}
	case api.TopicCanvas:
		var ev api.CanvasEvent
		if json.Unmarshal(payload, &ev) == nil {
			o.applyCanvasEvent(ev)
		}
	case api.TopicCanvasClear:
		var ev api.CanvasClearEvent
		if json.Unmarshal(payload, &ev) == nil {
			o.applyCanvasClear(ev)
		}
	}
}

// deliverChat renders each message exactly once regardless of which path it
// arrived on first.
func (o *Orchestrator) deliverChat(b api.ChatBroadcast) {
	key := DedupKey(b.ID, b.Timestamp, b.UserID, b.Message)
	if o.dedup.Seen(key) {
		return
	}
	if o.events.OnChat != nil {
		o.events.OnChat(b)
	}
}

// deliverHistory marks history messages as seen so a live duplicate of the
// same message does not render twice at merge time.
func (o *Orchestrator) deliverHistory(h api.HistoryReply) {
	for _, m := range h.Messages {
		o.dedup.Seen(DedupKey(m.ID, m.Timestamp, m.UserID, m.Message))
	}
	if o.events.OnHistory != nil {
		o.events.OnHistory(h)
	}
}

func (o *Orchestrator) onRemoteTrack(t RemoteTrack) {
	st := o.streams.Add(t)
	if o.events.OnStream != nil {
		o.events.OnStream(st)
	}
}

func (o *Orchestrator) onRemoteTrackRemoved(trackID string) {
	key, emptied, ok := o.streams.RemoveByTrackID(trackID)
	if ok && emptied && o.events.OnStreamRemoved != nil {
		o.events.OnStreamRemoved(key)
	}
}

// SendChat submits a message; the authoritative copy comes back through the
// broadcast and is rendered from there.
func (o *Orchestrator) SendChat(message string) {
	o.mu.Lock()
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig == nil {
		return
	}
	sig.Notify(api.ChatMessage, api.ChatSend{SessionID: sessionID, Message: message})
}

// RequestHistory pages backwards through persisted chat.
func (o *Orchestrator) RequestHistory(before string, limit int) (api.HistoryReply, error) {
	o.mu.Lock()
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig == nil {
		return api.HistoryReply{}, ErrNotConnected
	}
	reply, err := sig.Call(api.GetMessageHistory, api.HistoryRequest{
		SessionID: sessionID, Limit: limit, Before: before,
	})
	if err != nil {
		return api.HistoryReply{}, err
	}
	out := api.Unwrap[api.HistoryReply](reply.Payload)
	if out == nil {
		return api.HistoryReply{}, ErrMalformedReply
	}
	return *out, nil
}

// RequestParticipants fetches the current roster.
func (o *Orchestrator) RequestParticipants() (api.ParticipantsReply, error) {
	o.mu.Lock()
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig == nil {
		return api.ParticipantsReply{}, ErrNotConnected
	}
	reply, err := sig.Call(api.GetSessionParticipants, api.ParticipantsRequest{SessionID: sessionID})
	if err != nil {
		return api.ParticipantsReply{}, err
	}
	out := api.Unwrap[api.ParticipantsReply](reply.Payload)
	if out == nil {
		return api.ParticipantsReply{}, ErrMalformedReply
	}
	return *out, nil
}

// ToggleAudio and ToggleVideo update local state immediately; the track
// mute/unmute and the presence broadcast run after the debounce window, so
// a toggle storm applies exactly one transition with the final state.
func (o *Orchestrator) ToggleAudio(enabled bool) { o.toggle("audio", enabled) }
func (o *Orchestrator) ToggleVideo(enabled bool) { o.toggle("video", enabled) }

func (o *Orchestrator) toggle(kind string, enabled bool) {
	o.mu.Lock()
	if kind == "audio" {
		o.audioOn = enabled
	} else {
		o.videoOn = enabled
	}
	o.mu.Unlock()
	o.debounce.Trigger(kind, func() {
		if err := o.room.SetMuted(kind, !enabled); err != nil {
			o.log.Warn().Err(err).Msgf("toggle %v", kind)
		}
		o.mu.Lock()
		sig, sessionID := o.sig, o.sessionID
		o.mu.Unlock()
		if sig != nil {
			sig.Notify(api.ToggleMedia, api.ToggleMediaRequest{
				SessionID: sessionID, Type: kind, IsEnabled: enabled,
			})
		}
	})
}

// AudioEnabled/VideoEnabled reflect the local UI state, which may be ahead
// of the applied track state during the debounce window.
func (o *Orchestrator) AudioEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.audioOn
}

func (o *Orchestrator) VideoEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.videoOn
}

// StartScreenShare captures a distinct source and publishes it as a
// separate track.
func (o *Orchestrator) StartScreenShare(ctx context.Context) error {
	o.mu.Lock()
	if o.sharing {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	track, err := o.capture.AcquireScreen()
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, o.conf.PublishTimeout)
	defer cancel()
	id, err := o.room.Publish(pubCtx, track, "screen")
	if err != nil {
		_ = track.Close()
		return err
	}
	o.mu.Lock()
	o.sharing = true
	o.shareSeq++
	o.shareTrack = id
	o.shareLocal = track
	o.published = append(o.published, id)
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig != nil {
		sig.Notify(api.StartScreenShare, api.ScreenShareRequest{SessionID: sessionID})
	}
	return nil
}

func (o *Orchestrator) StopScreenShare() {
	o.mu.Lock()
	if !o.sharing {
		o.mu.Unlock()
		return
	}
	o.sharing = false
	id := o.shareTrack
	o.shareTrack = ""
	local := o.shareLocal
	o.shareLocal = nil
	for i, p := range o.published {
		if p == id {
			o.published = append(o.published[:i], o.published[i+1:]...)
			break
		}
	}
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()

	_ = o.room.Unpublish(id)
	if local != nil {
		// stop the capture too, or the screen grab keeps running
		_ = local.Close()
	}
	if sig != nil {
		sig.Notify(api.StopScreenShare, api.ScreenShareRequest{SessionID: sessionID})
	}
}

// onLocalTrackEnded handles the capture source stopping on its own (the OS
// "stop sharing" control). It is ignored unless it refers to the share that
// is still active, so a late signal cannot kill a newer share session.
func (o *Orchestrator) onLocalTrackEnded(trackID string) {
	o.mu.Lock()
	current := o.sharing && o.shareTrack == trackID
	o.mu.Unlock()
	if current {
		o.StopScreenShare()
	}
}
