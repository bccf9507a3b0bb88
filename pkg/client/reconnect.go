package client

import (
	"context"
	"time"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/media"
)

// onConnectionLost reacts to an unexpected signaling drop. It waits out a
// grace period for the transport's own resume, then runs the bounded
// reconnection loop. A second trigger while one loop is in flight is a no-op.
func (o *Orchestrator) onConnectionLost() {
	o.mu.Lock()
	if o.reconnecting || o.leaving || o.state == StateFatal || o.state == StateLeft {
		o.mu.Unlock()
		return
	}
	o.reconnecting = true
	o.mu.Unlock()

	o.sleep(o.conf.ReconnectGrace)
	o.mu.Lock()
	aborted := o.leaving
	o.mu.Unlock()
	if aborted {
		o.finishReconnect()
		return
	}
	o.setState(StateReconnecting)
	o.reconnectLoop()
}

// reconnectLoop attempts up to ReconnectAttempts rejoins with exponential
// backoff (base doubling per attempt, capped). Each attempt prefers a fresh
// credential over the REST endpoint, falling back to the cached one while it
// is unexpired. Exhaustion is terminal: the user must rejoin manually.
func (o *Orchestrator) reconnectLoop() {
	defer o.finishReconnect()
	for attempt := 1; attempt <= o.conf.ReconnectAttempts; attempt++ {
		delay := o.backoff(attempt)
		o.log.Info().Msgf("reconnect attempt %d/%d in %v", attempt, o.conf.ReconnectAttempts, delay)
		o.sleep(delay)

		o.mu.Lock()
		leaving := o.leaving
		sessionID := o.sessionID
		o.mu.Unlock()
		if leaving {
			return
		}
		if o.rejoin(sessionID) {
			o.setState(StateConnected)
			o.log.Info().Msgf("reconnected on attempt %d", attempt)
			return
		}
	}
	o.fatal("connection lost and could not be restored; please rejoin the meeting")
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.conf.ReconnectBase << (attempt - 1)
	if delay > o.conf.ReconnectCap {
		delay = o.conf.ReconnectCap
	}
	return delay
}

// rejoin re-runs the join handshake on a fresh connection with a usable
// credential. One failed attempt never aborts the loop.
func (o *Orchestrator) rejoin(sessionID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), o.conf.ConnectTimeout)
	defer cancel()

	cred, err := o.creds.ForReconnect(ctx, sessionID)
	if err != nil {
		o.log.Warn().Err(err).Msg("credential refresh")
		return false
	}

	sig, err := o.dial()
	if err != nil {
		o.log.Warn().Err(err).Msg("redial")
		return false
	}
	sig.OnPacket(o.onPacket)
	sig.Listen()
	reply, err := sig.Call(api.JoinRoom, api.JoinRoomRequest{SessionID: sessionID, Token: o.token})
	if err != nil || reply.T != api.JoinRoomSuccess {
		sig.Close()
		o.log.Warn().Err(err).Msgf("rejoin handshake (%v)", reply.T)
		return false
	}
	if success := api.Unwrap[api.JoinRoomSuccessReply](reply.Payload); success != nil {
		fresh := credentialFrom(success.LiveKit)
		if fresh.AccessToken != "" {
			cred = fresh
			o.creds.Cache(fresh)
		}
	}

	o.mu.Lock()
	old := o.sig
	o.sig = sig
	o.sigGen++
	gen := o.sigGen
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if !o.reattachRoom(ctx, cred) {
		return false
	}
	go o.watch(sig, gen)
	return true
}

// reattachRoom swaps the media-room connection to the new credential and
// republishes local tracks.
func (o *Orchestrator) reattachRoom(ctx context.Context, cred media.Credential) bool {
	o.room.Disconnect()
	if err := o.room.Connect(ctx, cred, RoomEvents{
		OnTrack:           o.onRemoteTrack,
		OnTrackRemoved:    o.onRemoteTrackRemoved,
		OnData:            o.onData,
		OnDisconnect:      o.onConnectionLost,
		OnLocalTrackEnded: o.onLocalTrackEnded,
	}); err != nil {
		o.log.Warn().Err(err).Msg("media room reattach")
		return false
	}
	o.mu.Lock()
	o.published = nil
	o.mu.Unlock()
	o.publishLocal(ctx)
	return true
}

func (o *Orchestrator) finishReconnect() {
	o.mu.Lock()
	o.reconnecting = false
	o.mu.Unlock()
}
