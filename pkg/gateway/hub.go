package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/auth"
	"github.com/liveclass/liveclass/pkg/chat"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
	"github.com/liveclass/liveclass/pkg/presence"
	"github.com/liveclass/liveclass/pkg/session"
)

// Transport is the outbound half of a signaling connection; satisfied by
// com.Client and by test fakes.
type Transport interface {
	Id() com.Uid
	Notify(t string, payload any)
	Route(p com.In, t string, payload any)
	Close()
}

// ioTimeout bounds the blocking calls a handler makes on behalf of one
// connection (directory lookups, chat persistence, room provisioning).
const ioTimeout = 10 * time.Second

// Hub owns all live connections of this gateway instance and coordinates
// the presence registry, chat store and media provisioner between them.
type Hub struct {
	conf      config.Gateway
	users     com.Map[com.Uid, *User]
	registry  *presence.Registry
	directory session.Directory
	store     chat.Store
	media     media.Provisioner
	verifier  TokenVerifier
	canvas    *canvasState
	metrics   *metrics
	log       *logger.Logger
	now       func() time.Time
}

// TokenVerifier validates platform join tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

func NewHub(conf config.Gateway, deps Deps, m *metrics, log *logger.Logger) *Hub {
	return &Hub{
		conf:      conf,
		users:     com.NewMap[com.Uid, *User](),
		registry:  presence.NewRegistry(),
		directory: deps.Directory,
		store:     deps.Store,
		media:     deps.Media,
		verifier:  deps.Verifier,
		canvas:    newCanvasState(),
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Deps are the hub's external collaborators.
type Deps struct {
	Directory session.Directory
	Store     chat.Store
	Media     media.Provisioner
	Verifier  TokenVerifier
}

// handleWS upgrades a signaling connection and pumps its packets until the
// socket closes; disconnect runs the same cleanup as an explicit leave.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := com.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade")
		return
	}
	usr := NewUser(conn, h.log)
	h.users.Put(conn.Id(), usr)
	h.metrics.connections.Inc()
	usr.log.Debug().Msg("connected")

	conn.OnPacket(func(in com.In) { h.route(usr, in) })
	conn.Listen()
	<-conn.Wait()

	h.drop(usr)
	h.users.RemoveByKey(conn.Id())
	h.metrics.connections.Dec()
	usr.log.Debug().Msg("disconnected")
}

func (h *Hub) route(u *User, in com.In) {
	h.metrics.packets.WithLabelValues(in.T).Inc()
	switch in.T {
	case api.JoinRoom:
		h.HandleJoin(u, in)
	case api.LeaveRoom:
		h.HandleLeave(u, in)
	case api.ChatMessage:
		h.HandleChat(u, in)
	case api.GetSessionParticipants:
		h.HandleParticipants(u, in)
	case api.GetMessageHistory:
		h.HandleHistory(u, in)
	case api.StartScreenShare:
		h.HandleScreenShare(u, in, true)
	case api.StopScreenShare:
		h.HandleScreenShare(u, in, false)
	case api.ToggleMedia:
		h.HandleToggleMedia(u, in)
	case api.CanvasDraw:
		h.HandleCanvas(u, in)
	case api.CanvasClear:
		h.HandleCanvasClear(u, in)
	default:
		u.log.Warn().Msgf("unknown packet %v", in.T)
	}
}

// Broadcast fans a packet out to every joined connection of the session,
// except the given one (pass com.NilUid to include everyone).
func (h *Hub) Broadcast(sessionID string, except com.Uid, t string, payload any) {
	h.users.ForEach(func(u *User) {
		if u.SessionID() != sessionID || u.State() != StateJoined {
			return
		}
		if u.Id() == except {
			return
		}
		u.Notify(t, payload)
		h.metrics.broadcasts.Inc()
	})
}

// drop removes the connection's registry entry and tells the room; it is
// safe to call for connections that never joined.
func (h *Hub) drop(u *User) {
	p := h.registry.RemoveByConnection(u.Id())
	if p == nil {
		return
	}
	u.setState(StateLeft)
	h.Broadcast(p.SessionID, u.Id(), api.UserLeft, api.UserLeftEvent{
		SessionID: p.SessionID,
		UserID:    p.UserID,
	})
	if len(h.registry.ListSession(p.SessionID)) == 0 {
		h.canvas.Prune(p.SessionID)
	}
}

// closeStale closes the previous socket of a reconnecting identity after its
// registry entry was overwritten.
func (h *Hub) closeStale(connID com.Uid) {
	if old, err := h.users.Find(connID); err == nil {
		old.setState(StateLeft)
		old.log.Debug().Msg("evicting stale connection")
		old.Close()
	}
}

// relay mirrors an event into the media room's data side-channel.
// Best-effort: failures are logged and swallowed.
func (h *Hub) relay(sessionID, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msgf("encode relay %v", topic)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := h.media.Relay(ctx, sessionID, topic, data); err != nil {
		h.metrics.relayErrors.Inc()
		h.log.Warn().Err(err).Msgf("relay %v", topic)
	}
}

func (h *Hub) roster(sessionID string) []api.Participant {
	list := h.registry.ListSession(sessionID)
	out := make([]api.Participant, len(list))
	for i, p := range list {
		out[i] = api.Participant{
			UserID:        p.UserID,
			FullName:      p.FullName,
			Avatar:        p.Avatar,
			Role:          string(p.Role),
			AudioEnabled:  p.AudioEnabled,
			VideoEnabled:  p.VideoEnabled,
			ScreenSharing: p.ScreenSharing,
			Online:        true,
		}
	}
	return out
}
