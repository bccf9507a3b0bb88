// Package gateway is the signaling and authorization front of the meeting
// service: it admits participants into sessions, brokers chat, presence and
// screen-share events between their connections, and hands out media-room
// credentials.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/network/httpx"
	"github.com/liveclass/liveclass/pkg/os"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

type Gateway struct {
	Hub *Hub

	server *httpx.Server
	lock   *os.Flock
	log    *logger.Logger
}

// New assembles the gateway service. The file lock rejects a second gateway
// process on the same host, which would split the in-process registry.
func New(conf config.Config, deps Deps, log *logger.Logger) (*Gateway, error) {
	lock, err := os.NewFileLock(conf.Gateway.LockFile)
	if err != nil {
		return nil, err
	}
	if ok, err := lock.TryLock(); err != nil || !ok {
		if err == nil {
			err = errors.New("another gateway instance is already running")
		}
		return nil, err
	}

	hub := NewHub(conf.Gateway, deps, newMetrics(prometheus.DefaultRegisterer), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.handleWS)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /meet/{sessionId}/livekit-token", hub.handleToken)

	options := []httpx.Option{httpx.WithLogger(log)}
	if conf.Gateway.Tls.Enabled {
		options = append(options, httpx.WithTls(conf.Gateway.Tls.Cert, conf.Gateway.Tls.Key, conf.Gateway.Tls.Domain))
	}
	return &Gateway{
		Hub:    hub,
		server: httpx.NewServer(conf.Gateway.Address, mux, options...),
		lock:   lock,
		log:    log,
	}, nil
}

func (g *Gateway) Run() { g.server.Run() }

func (g *Gateway) Stop(ctx context.Context) error {
	err := g.server.Stop(ctx)
	if uerr := g.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleToken is the out-of-band credential refresh used by reconnecting
// clients: same authorization pipeline as join, REST instead of signaling.
func (h *Hub) handleToken(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	token := bearerToken(r)
	if sessionID == "" || token == "" {
		http.Error(w, "missing session id or token", http.StatusBadRequest)
		return
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ioTimeout)
	defer cancel()
	s, err := h.directory.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
		} else {
			http.Error(w, "session lookup failed", http.StatusInternalServerError)
		}
		return
	}
	if s.Ended(h.now()) {
		http.Error(w, "session has ended", http.StatusForbidden)
		return
	}
	role, err := h.directory.Authorize(ctx, s, id.ID)
	if err != nil {
		http.Error(w, "not a member of this session", http.StatusForbidden)
		return
	}
	cred, err := h.provision(ctx, s.ID, id, role)
	if err != nil {
		h.log.Error().Err(err).Msg("token refresh provisioning")
		http.Error(w, "media room unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.TokenReply{
		SessionID: s.ID,
		LiveKit: api.LiveKitInfo{
			URL:         cred.URL,
			RoomName:    cred.RoomName,
			AccessToken: cred.AccessToken,
		},
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(header, "Bearer "); ok {
		return t
	}
	return r.URL.Query().Get("token")
}
