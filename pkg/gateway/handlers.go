package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/auth"
	"github.com/liveclass/liveclass/pkg/chat"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/media"
	"github.com/liveclass/liveclass/pkg/presence"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/rs/xid"
)

// HandleJoin runs the full admission pipeline: token → session → membership →
// registry → roster/history → media credential. Authorization failures are
// terminal for the attempt and leave no registry entry; a credential failure
// after registration rolls the registration back, because the session is
// unusable without a media path.
func (h *Hub) HandleJoin(u *User, in com.In) {
	req := api.Unwrap[api.JoinRoomRequest](in.Payload)
	if req == nil || req.SessionID == "" {
		h.joinError(u, in, "Bad request: malformed join payload")
		return
	}
	u.setState(StateAuthorizing)

	id, err := h.verifier.Verify(req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			h.joinError(u, in, "Unauthorized: token expired")
		} else {
			h.joinError(u, in, "Unauthorized: invalid token")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	s, err := h.directory.Session(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.joinError(u, in, "NotFound: session not found")
		} else {
			u.log.Error().Err(err).Msg("session lookup")
			h.joinError(u, in, "Internal: session lookup failed")
		}
		return
	}
	if s.Ended(h.now()) {
		h.joinError(u, in, "Forbidden: session has ended")
		return
	}
	role, err := h.directory.Authorize(ctx, s, id.ID)
	if err != nil {
		if errors.Is(err, session.ErrForbidden) {
			h.joinError(u, in, "Forbidden: you are not a member of this session")
		} else {
			u.log.Error().Err(err).Msg("authorize")
			h.joinError(u, in, "Internal: authorization failed")
		}
		return
	}

	p := &presence.Participant{
		UserID:       id.ID,
		SessionID:    s.ID,
		ConnID:       u.Id(),
		FullName:     id.Name,
		Avatar:       id.Avatar,
		Role:         role,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     h.now(),
	}
	if stale, evicted := h.registry.Add(p); evicted {
		h.closeStale(stale)
	}
	u.setJoined(id, role, s.ID)

	h.Broadcast(s.ID, u.Id(), api.UserJoined, api.UserJoinedEvent{
		SessionID: s.ID,
		Participant: api.Participant{
			UserID: id.ID, FullName: id.Name, Avatar: id.Avatar,
			Role: string(role), AudioEnabled: true, VideoEnabled: true, Online: true,
		},
	})
	u.Notify(api.SessionParticipants, api.ParticipantsReply{
		SessionID:    s.ID,
		Participants: h.roster(s.ID),
	})
	h.sendHistory(ctx, u, s.ID)
	h.sendCanvas(u, s.ID)

	cred, err := h.provision(ctx, s.ID, id, role)
	if err != nil {
		u.log.Error().Err(err).Msg("credential provisioning")
		h.drop(u) // registered but unusable without media
		u.setState(StateError)
		u.Route(in, api.JoinRoomError, api.ErrorReply{Message: "ServiceUnavailable: media room unavailable"})
		h.metrics.joins.WithLabelValues("provisioning_error").Inc()
		return
	}

	u.Route(in, api.JoinRoomSuccess, api.JoinRoomSuccessReply{
		SessionID: s.ID,
		UserID:    id.ID,
		LiveKit: api.LiveKitInfo{
			URL:         cred.URL,
			RoomName:    cred.RoomName,
			AccessToken: cred.AccessToken,
		},
	})
	h.metrics.joins.WithLabelValues("success").Inc()
	u.log.Info().Msgf("joined session %v as %v (%v)", s.ID, id.ID, role)
}

func (h *Hub) joinError(u *User, in com.In, msg string) {
	u.setState(StateError)
	u.Route(in, api.JoinRoomError, api.ErrorReply{Message: msg})
	h.metrics.joins.WithLabelValues("rejected").Inc()
}

// provision ensures the media room exists and mints a credential scoped to
// the participant's identity and role.
func (h *Hub) provision(ctx context.Context, sessionID string, id auth.Identity, role session.Role) (media.Credential, error) {
	room, err := h.media.EnsureRoom(ctx, sessionID)
	if err != nil {
		return media.Credential{}, err
	}
	meta, _ := json.Marshal(map[string]string{
		"role":   string(role),
		"avatar": id.Avatar,
		"email":  id.Email,
	})
	return h.media.MintCredential(room, media.Identity{
		ID:       id.ID,
		Name:     id.Name,
		Metadata: string(meta),
	}, media.Grants{Publish: true, Subscribe: true, PublishData: true})
}

// sendHistory pushes the most recent persisted messages in chronological
// order, ready for display; paged get-message-history stays newest-first.
// Best-effort: a failing store degrades to an empty history, it never blocks
// the join.
func (h *Hub) sendHistory(ctx context.Context, u *User, sessionID string) {
	msgs, err := h.store.Recent(ctx, sessionID, h.conf.HistoryLimit)
	if err != nil {
		u.log.Warn().Err(err).Msg("history fetch")
	}
	out := toBroadcasts(msgs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	u.Notify(api.MessageHistory, api.HistoryReply{
		Messages: out,
		HasMore:  len(msgs) == h.conf.HistoryLimit,
		Total:    len(msgs),
	})
}

// sendCanvas replays the retained whiteboard log to a joiner so drawings made
// before they connected are reconstructable. The clear goes first so the
// client mirror starts from the right background.
func (h *Hub) sendCanvas(u *User, sessionID string) {
	clear, ops := h.canvas.Snapshot(sessionID)
	if clear != nil {
		u.Notify(api.CanvasClear, *clear)
	}
	for _, ev := range ops {
		u.Notify(api.CanvasDraw, ev)
	}
}

func (h *Hub) HandleLeave(u *User, in com.In) {
	req := api.Unwrap[api.LeaveRoomRequest](in.Payload)
	if req == nil {
		return
	}
	if _, _, ok := u.Joined(req.SessionID); !ok {
		return
	}
	h.drop(u)
	u.log.Info().Msgf("left session %v", req.SessionID)
}

func (h *Hub) HandleChat(u *User, in com.In) {
	req := api.Unwrap[api.ChatSend](in.Payload)
	if req == nil {
		return
	}
	id, _, ok := u.Joined(req.SessionID)
	if !ok {
		h.rejectUnregistered(u, in)
		return
	}
	now := h.now().UTC()
	msg := chat.Message{
		ID:           xid.New().String(),
		SessionID:    req.SessionID,
		SenderID:     id.ID,
		SenderName:   id.Name,
		SenderAvatar: id.Avatar,
		Content:      req.Message,
		CreatedAt:    now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := h.store.Save(ctx, &msg); err != nil {
		// best-effort: the broadcast is the primary delivery path
		u.log.Warn().Err(err).Msg("chat persist")
	}
	out := api.ChatBroadcast{
		ID:           msg.ID,
		SessionID:    msg.SessionID,
		Message:      msg.Content,
		UserID:       msg.SenderID,
		UserFullName: msg.SenderName,
		UserAvatar:   msg.SenderAvatar,
		Timestamp:    now.Format(time.RFC3339Nano),
	}
	// the sender gets the authoritative copy back too
	h.Broadcast(req.SessionID, com.NilUid, api.ChatMessage, out)
	h.relay(req.SessionID, api.TopicChat, out)
}

func (h *Hub) HandleParticipants(u *User, in com.In) {
	req := api.Unwrap[api.ParticipantsRequest](in.Payload)
	if req == nil {
		return
	}
	if _, _, ok := u.Joined(req.SessionID); !ok {
		h.rejectUnregistered(u, in)
		return
	}
	u.Route(in, api.SessionParticipants, api.ParticipantsReply{
		SessionID:    req.SessionID,
		Participants: h.roster(req.SessionID),
	})
}

func (h *Hub) HandleHistory(u *User, in com.In) {
	req := api.Unwrap[api.HistoryRequest](in.Payload)
	if req == nil {
		return
	}
	if _, _, ok := u.Joined(req.SessionID); !ok {
		h.rejectUnregistered(u, in)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > h.conf.HistoryLimit {
		limit = h.conf.HistoryLimit
	}
	var before time.Time
	if req.Before != "" {
		if t, err := time.Parse(time.RFC3339Nano, req.Before); err == nil {
			before = t
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	msgs, hasMore, total, err := h.store.History(ctx, req.SessionID, before, limit)
	if err != nil {
		u.log.Warn().Err(err).Msg("history page")
	}
	u.Route(in, api.MessageHistory, api.HistoryReply{
		Messages: toBroadcasts(msgs),
		HasMore:  hasMore,
		Total:    total,
	})
}

// HandleScreenShare flips the presence flag and announces it to the whole
// session, mirrored into the side-channel. Ephemeral, never persisted.
func (h *Hub) HandleScreenShare(u *User, in com.In, sharing bool) {
	req := api.Unwrap[api.ScreenShareRequest](in.Payload)
	if req == nil {
		return
	}
	id, _, ok := u.Joined(req.SessionID)
	if !ok {
		h.rejectUnregistered(u, in)
		return
	}
	h.registry.Update(id.ID, req.SessionID, func(p *presence.Participant) { p.ScreenSharing = sharing })
	out := api.ScreenShareEvent{SessionID: req.SessionID, UserID: id.ID, IsSharing: sharing}
	t := api.ScreenShareStarted
	if !sharing {
		t = api.ScreenShareStopped
	}
	h.Broadcast(req.SessionID, com.NilUid, t, out)
	h.relay(req.SessionID, api.TopicScreenShare, out)
}

func (h *Hub) HandleToggleMedia(u *User, in com.In) {
	req := api.Unwrap[api.ToggleMediaRequest](in.Payload)
	if req == nil || (req.Type != "audio" && req.Type != "video") {
		return
	}
	id, _, ok := u.Joined(req.SessionID)
	if !ok {
		h.rejectUnregistered(u, in)
		return
	}
	h.registry.Update(id.ID, req.SessionID, func(p *presence.Participant) {
		if req.Type == "audio" {
			p.AudioEnabled = req.IsEnabled
		} else {
			p.VideoEnabled = req.IsEnabled
		}
	})
	h.Broadcast(req.SessionID, com.NilUid, api.MediaToggled, api.MediaToggledEvent{
		SessionID: req.SessionID,
		UserID:    id.ID,
		Type:      req.Type,
		IsEnabled: req.IsEnabled,
	})
}

// HandleCanvas relays a whiteboard operation to the other session
// connections and retains it for late joiners; the controller applied it
// optimistically already.
func (h *Hub) HandleCanvas(u *User, in com.In) {
	req := api.Unwrap[api.CanvasEvent](in.Payload)
	if req == nil {
		return
	}
	if _, _, ok := u.Joined(req.SessionID); !ok {
		h.rejectUnregistered(u, in)
		return
	}
	h.canvas.Append(*req)
	h.Broadcast(req.SessionID, u.Id(), api.CanvasDraw, *req)
	h.relay(req.SessionID, api.TopicCanvas, *req)
}

func (h *Hub) HandleCanvasClear(u *User, in com.In) {
	req := api.Unwrap[api.CanvasClearEvent](in.Payload)
	if req == nil {
		return
	}
	if _, _, ok := u.Joined(req.SessionID); !ok {
		h.rejectUnregistered(u, in)
		return
	}
	h.canvas.Clear(*req)
	h.Broadcast(req.SessionID, u.Id(), api.CanvasClear, *req)
	h.relay(req.SessionID, api.TopicCanvasClear, *req)
}

func (h *Hub) rejectUnregistered(u *User, in com.In) {
	u.log.Warn().Msgf("%v from unregistered connection", in.T)
	if !in.Id.IsEmpty() {
		u.Route(in, api.Error, api.ErrorReply{Message: "Forbidden: not registered in this session"})
	}
}

func toBroadcasts(msgs []chat.Message) []api.ChatBroadcast {
	out := make([]api.ChatBroadcast, len(msgs))
	for i, m := range msgs {
		out[i] = api.ChatBroadcast{
			ID:           m.ID,
			SessionID:    m.SessionID,
			Message:      m.Content,
			UserID:       m.SenderID,
			UserFullName: m.SenderName,
			UserAvatar:   m.SenderAvatar,
			Timestamp:    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}
