package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/auth"
	"github.com/liveclass/liveclass/pkg/chat"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

type sentPacket struct {
	T       string
	Payload any
	Reply   bool
}

type fakeConn struct {
	id com.Uid

	mu     sync.Mutex
	sent   []sentPacket
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: com.NewUid()} }

func (f *fakeConn) Id() com.Uid { return f.id }
func (f *fakeConn) Notify(t string, payload any) {
	f.mu.Lock()
	f.sent = append(f.sent, sentPacket{T: t, Payload: payload})
	f.mu.Unlock()
}
func (f *fakeConn) Route(_ com.In, t string, payload any) {
	f.mu.Lock()
	f.sent = append(f.sent, sentPacket{T: t, Payload: payload, Reply: true})
	f.mu.Unlock()
}
func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) byType(t string) []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentPacket
	for _, p := range f.sent {
		if p.T == t {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeConn) last(t *testing.T, want string) sentPacket {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no packets sent, want %v", want)
	}
	p := f.sent[len(f.sent)-1]
	if p.T != want {
		t.Fatalf("last packet is %v, want %v (all: %+v)", p.T, want, f.sent)
	}
	return p
}

type fakeVerifier struct{ tokens map[string]auth.Identity }

func (v *fakeVerifier) Verify(token string) (auth.Identity, error) {
	if id, ok := v.tokens[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

type fakeProvisioner struct {
	mu       sync.Mutex
	failMint bool
	relayed  []string // topics
}

func (p *fakeProvisioner) EnsureRoom(_ context.Context, sessionID string) (string, error) {
	return "meet-" + sessionID, nil
}
func (p *fakeProvisioner) MintCredential(roomName string, id media.Identity, _ media.Grants) (media.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failMint {
		return media.Credential{}, errors.New("service unavailable")
	}
	return media.Credential{
		URL:         "wss://media.test",
		RoomName:    roomName,
		AccessToken: "tok-" + id.ID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}
func (p *fakeProvisioner) Relay(_ context.Context, _ string, topic string, _ []byte) error {
	p.mu.Lock()
	p.relayed = append(p.relayed, topic)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvisioner) relayedTopics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.relayed...)
}

type env struct {
	hub   *Hub
	prov  *fakeProvisioner
	store *chat.MemStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := session.NewMemDirectory()
	dir.AddSession(&session.Session{ID: "S123", ClassID: "c1", HostID: "host", StartAt: time.Now()})
	dir.AddMember("c1", "alice", session.RoleMember)
	dir.AddMember("c1", "tina", session.RoleTeacher)

	prov := &fakeProvisioner{}
	store := chat.NewMemStore()
	hub := NewHub(
		config.Gateway{HistoryLimit: 20},
		Deps{
			Directory: dir,
			Store:     store,
			Media:     prov,
			Verifier: &fakeVerifier{tokens: map[string]auth.Identity{
				"t-alice": {ID: "alice", Name: "Alice"},
				"t-tina":  {ID: "tina", Name: "Tina"},
				"t-bob":   {ID: "bob", Name: "Bob"},
			}},
		},
		newMetrics(prometheus.NewRegistry()),
		logger.Default(),
	)
	return &env{hub: hub, prov: prov, store: store}
}

func wrap(t *testing.T, payload any) com.In {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return com.In{Id: com.NewUid(), T: "", Payload: raw}
}

// join runs the join handshake for a connection and fails the test unless it
// succeeds.
func (e *env) join(t *testing.T, token string) (*fakeConn, *User) {
	t.Helper()
	conn := newFakeConn()
	u := NewUser(conn, logger.Default())
	e.hub.users.Put(conn.Id(), u)
	e.hub.HandleJoin(u, wrap(t, api.JoinRoomRequest{SessionID: "S123", Token: token}))
	conn.last(t, api.JoinRoomSuccess)
	return conn, u
}

func TestJoinSuccess(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		e.store.Save(context.Background(), &chat.Message{
			SessionID: "S123", SenderID: "host",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	conn := newFakeConn()
	u := NewUser(conn, logger.Default())
	e.hub.users.Put(conn.Id(), u)
	e.hub.HandleJoin(u, wrap(t, api.JoinRoomRequest{SessionID: "S123", Token: "t-alice"}))

	reply := conn.last(t, api.JoinRoomSuccess)
	success := reply.Payload.(api.JoinRoomSuccessReply)
	if success.UserID != "alice" || success.LiveKit.AccessToken == "" {
		t.Fatalf("bad success payload: %+v", success)
	}
	if u.State() != StateJoined {
		t.Fatalf("state = %v", u.State())
	}

	roster := conn.byType(api.SessionParticipants)
	if len(roster) != 1 {
		t.Fatalf("expected 1 roster push, got %d", len(roster))
	}
	history := conn.byType(api.MessageHistory)
	if len(history) != 1 {
		t.Fatalf("expected 1 history push, got %d", len(history))
	}
	msgs := history[0].Payload.(api.HistoryReply).Messages
	if len(msgs) > 20 {
		t.Errorf("history holds %d messages, cap is 20", len(msgs))
	}
	// join-time push is chronological, ready for display
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Timestamp > msgs[i].Timestamp {
			t.Fatalf("history out of order at %d: %v > %v", i, msgs[i-1].Timestamp, msgs[i].Timestamp)
		}
	}
}

func TestJoinForbiddenLeavesNoPresence(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	conn := newFakeConn()
	u := NewUser(conn, logger.Default())
	e.hub.users.Put(conn.Id(), u)
	e.hub.HandleJoin(u, wrap(t, api.JoinRoomRequest{SessionID: "S123", Token: "t-bob"}))

	reply := conn.last(t, api.JoinRoomError)
	msg := reply.Payload.(api.ErrorReply).Message
	if msg != "Forbidden: you are not a member of this session" {
		t.Errorf("message = %q", msg)
	}
	if e.hub.registry.IsOnline("bob", "S123") {
		t.Error("forbidden join created a registry entry")
	}
	if u.State() != StateError {
		t.Errorf("state = %v", u.State())
	}
}

func TestJoinRejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ended := time.Now().Add(-time.Hour)
	dir := e.hub.directory.(*session.MemDirectory)
	dir.AddSession(&session.Session{ID: "SOLD", ClassID: "c1", HostID: "host", EndAt: &ended})

	for _, tc := range []struct {
		name, sid, token, want string
	}{
		{"InvalidToken", "S123", "garbage", "Unauthorized: invalid token"},
		{"UnknownSession", "nope", "t-alice", "NotFound: session not found"},
		{"EndedSession", "SOLD", "t-alice", "Forbidden: session has ended"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn()
			u := NewUser(conn, logger.Default())
			e.hub.HandleJoin(u, wrap(t, api.JoinRoomRequest{SessionID: tc.sid, Token: tc.token}))
			if got := conn.last(t, api.JoinRoomError).Payload.(api.ErrorReply).Message; got != tc.want {
				t.Errorf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestJoinProvisioningFailureIsFatal(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.prov.failMint = true
	conn := newFakeConn()
	u := NewUser(conn, logger.Default())
	e.hub.users.Put(conn.Id(), u)
	e.hub.HandleJoin(u, wrap(t, api.JoinRoomRequest{SessionID: "S123", Token: "t-alice"}))

	conn.last(t, api.JoinRoomError)
	if e.hub.registry.IsOnline("alice", "S123") {
		t.Error("failed join left a registry entry behind")
	}
}

func TestReconnectEvictsStaleConnection(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	first, _ := e.join(t, "t-alice")
	second, _ := e.join(t, "t-alice")

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Error("stale connection was not closed")
	}

	// a third participant's roster still holds one alice
	viewer, _ := e.join(t, "t-tina")
	roster := viewer.byType(api.SessionParticipants)[0].Payload.(api.ParticipantsReply)
	count := 0
	for _, p := range roster.Participants {
		if p.UserID == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("roster holds %d alice entries", count)
	}
	_ = second
}

func TestChatBroadcastAndRelay(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice, aliceUser := e.join(t, "t-alice")
	tina, _ := e.join(t, "t-tina")

	e.hub.HandleChat(aliceUser, wrap(t, api.ChatSend{SessionID: "S123", Message: "hi"}))

	// both the sender and the peer get the authoritative broadcast
	for name, conn := range map[string]*fakeConn{"sender": alice, "peer": tina} {
		got := conn.byType(api.ChatMessage)
		if len(got) != 1 {
			t.Fatalf("%s received %d chat packets", name, len(got))
		}
		b := got[0].Payload.(api.ChatBroadcast)
		if b.Message != "hi" || b.UserID != "alice" || b.ID == "" || b.Timestamp == "" {
			t.Errorf("%s got %+v", name, b)
		}
	}
	if topics := e.prov.relayedTopics(); len(topics) != 1 || topics[0] != api.TopicChat {
		t.Errorf("relay topics = %v", topics)
	}
	// persisted best-effort
	msgs, _ := e.store.Recent(context.Background(), "S123", 10)
	if len(msgs) != 1 {
		t.Errorf("persisted %d messages", len(msgs))
	}
}

func TestChatFromUnregisteredIsRejected(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	member, _ := e.join(t, "t-alice")

	stranger := newFakeConn()
	u := NewUser(stranger, logger.Default())
	e.hub.users.Put(stranger.Id(), u)
	e.hub.HandleChat(u, wrap(t, api.ChatSend{SessionID: "S123", Message: "spam"}))

	if got := member.byType(api.ChatMessage); len(got) != 0 {
		t.Errorf("unregistered chat reached the session: %+v", got)
	}
	stranger.last(t, api.Error)
}

func TestLeaveBroadcastsUserLeft(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, aliceUser := e.join(t, "t-alice")
	tina, _ := e.join(t, "t-tina")

	e.hub.HandleLeave(aliceUser, wrap(t, api.LeaveRoomRequest{SessionID: "S123"}))

	left := tina.byType(api.UserLeft)
	if len(left) != 1 || left[0].Payload.(api.UserLeftEvent).UserID != "alice" {
		t.Fatalf("user-left packets: %+v", left)
	}
	if e.hub.registry.IsOnline("alice", "S123") {
		t.Error("alice still registered after leave")
	}
	// disconnect cleanup after leave is a no-op
	e.hub.drop(aliceUser)
	if got := tina.byType(api.UserLeft); len(got) != 1 {
		t.Errorf("duplicate user-left after disconnect: %d", len(got))
	}
}

func TestScreenShareUpdatesPresence(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice, aliceUser := e.join(t, "t-alice")

	e.hub.HandleScreenShare(aliceUser, wrap(t, api.ScreenShareRequest{SessionID: "S123"}), true)
	ev := alice.byType(api.ScreenShareStarted)
	if len(ev) != 1 || !ev[0].Payload.(api.ScreenShareEvent).IsSharing {
		t.Fatalf("screen-share-started: %+v", ev)
	}
	p, _ := e.hub.registry.Get("alice", "S123")
	if !p.ScreenSharing {
		t.Error("presence flag not set")
	}

	e.hub.HandleScreenShare(aliceUser, wrap(t, api.ScreenShareRequest{SessionID: "S123"}), false)
	p, _ = e.hub.registry.Get("alice", "S123")
	if p.ScreenSharing {
		t.Error("presence flag not cleared")
	}
	if topics := e.prov.relayedTopics(); len(topics) != 2 {
		t.Errorf("relay topics = %v", topics)
	}
}

func TestToggleMediaBroadcast(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice, aliceUser := e.join(t, "t-alice")
	e.hub.HandleToggleMedia(aliceUser, wrap(t, api.ToggleMediaRequest{SessionID: "S123", Type: "audio", IsEnabled: false}))

	ev := alice.byType(api.MediaToggled)
	if len(ev) != 1 {
		t.Fatalf("media-toggled packets: %+v", ev)
	}
	got := ev[0].Payload.(api.MediaToggledEvent)
	if got.Type != "audio" || got.IsEnabled {
		t.Errorf("event = %+v", got)
	}
	p, _ := e.hub.registry.Get("alice", "S123")
	if p.AudioEnabled {
		t.Error("presence flag not updated")
	}
}

func TestCanvasRelayedToOthersOnly(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice, aliceUser := e.join(t, "t-alice")
	tina, _ := e.join(t, "t-tina")

	e.hub.HandleCanvas(aliceUser, wrap(t, api.CanvasEvent{
		SessionID: "S123", Type: "shape", Timestamp: time.Now().Format(time.RFC3339Nano),
	}))
	if got := alice.byType(api.CanvasDraw); len(got) != 0 {
		t.Error("controller received its own canvas echo")
	}
	if got := tina.byType(api.CanvasDraw); len(got) != 1 {
		t.Fatalf("observer canvas packets: %d", len(got))
	}
	if topics := e.prov.relayedTopics(); len(topics) != 1 || topics[0] != api.TopicCanvas {
		t.Errorf("relay topics = %v", topics)
	}
}

func canvasOp(t *testing.T, ts time.Time) com.In {
	t.Helper()
	data, _ := json.Marshal(map[string]any{
		"kind": "rectangle",
		"from": map[string]float64{"x": 10, "y": 10},
		"to":   map[string]float64{"x": 110, "y": 90},
	})
	return wrap(t, api.CanvasEvent{
		SessionID: "S123", Type: "shape", Data: data,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	})
}

func TestLateJoinerReceivesCanvasLog(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, aliceUser := e.join(t, "t-alice")
	base := time.Now()

	e.hub.HandleCanvas(aliceUser, canvasOp(t, base))
	e.hub.HandleCanvas(aliceUser, canvasOp(t, base.Add(time.Second)))

	// tina was not connected while the drawing happened
	tina, _ := e.join(t, "t-tina")
	got := tina.byType(api.CanvasDraw)
	if len(got) != 2 {
		t.Fatalf("late joiner received %d canvas ops, want 2", len(got))
	}
	first := got[0].Payload.(api.CanvasEvent)
	if first.Type != "shape" || len(first.Data) == 0 {
		t.Errorf("first replayed op = %+v", first)
	}
	if got[0].Payload.(api.CanvasEvent).Timestamp > got[1].Payload.(api.CanvasEvent).Timestamp {
		t.Error("retained ops replayed out of log order")
	}
}

func TestCanvasClearTrimsRetainedLog(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, aliceUser := e.join(t, "t-alice")
	base := time.Now()

	e.hub.HandleCanvas(aliceUser, canvasOp(t, base))
	e.hub.HandleCanvasClear(aliceUser, wrap(t, api.CanvasClearEvent{
		SessionID: "S123", Background: "#eeeeee",
		Timestamp: base.Add(time.Second).UTC().Format(time.RFC3339Nano),
	}))
	e.hub.HandleCanvas(aliceUser, canvasOp(t, base.Add(2*time.Second)))

	tina, _ := e.join(t, "t-tina")
	clears := tina.byType(api.CanvasClear)
	if len(clears) != 1 || clears[0].Payload.(api.CanvasClearEvent).Background != "#eeeeee" {
		t.Fatalf("clear push: %+v", clears)
	}
	if got := tina.byType(api.CanvasDraw); len(got) != 1 {
		t.Fatalf("late joiner received %d post-clear ops, want 1", len(got))
	}
}

func TestCanvasPrunedWithEmptySession(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, aliceUser := e.join(t, "t-alice")
	e.hub.HandleCanvas(aliceUser, canvasOp(t, time.Now()))
	e.hub.HandleLeave(aliceUser, wrap(t, api.LeaveRoomRequest{SessionID: "S123"}))

	tina, _ := e.join(t, "t-tina")
	if got := tina.byType(api.CanvasDraw); len(got) != 0 {
		t.Errorf("canvas log survived an emptied session: %d ops", len(got))
	}
}

func TestHistoryPaging(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		e.store.Save(context.Background(), &chat.Message{
			SessionID: "S123", SenderID: "host",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	conn, u := e.join(t, "t-alice")

	e.hub.HandleHistory(u, wrap(t, api.HistoryRequest{SessionID: "S123", Limit: 10}))
	reply := conn.last(t, api.MessageHistory).Payload.(api.HistoryReply)
	if len(reply.Messages) != 10 || !reply.HasMore || reply.Total != 30 {
		t.Fatalf("page: %d messages, hasMore=%v, total=%d", len(reply.Messages), reply.HasMore, reply.Total)
	}
	// next page: strictly older than the last message of this one
	oldest := reply.Messages[len(reply.Messages)-1]
	e.hub.HandleHistory(u, wrap(t, api.HistoryRequest{SessionID: "S123", Limit: 10, Before: oldest.Timestamp}))
	next := conn.last(t, api.MessageHistory).Payload.(api.HistoryReply)
	if len(next.Messages) != 10 {
		t.Fatalf("second page: %d messages", len(next.Messages))
	}
	if next.Messages[0].Timestamp >= oldest.Timestamp {
		t.Errorf("page overlap: %v >= %v", next.Messages[0].Timestamp, oldest.Timestamp)
	}
}
