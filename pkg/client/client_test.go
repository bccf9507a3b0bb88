package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
)

func testConf() config.Client {
	return config.Client{
		ConnectTimeout:    time.Second,
		PublishTimeout:    time.Second,
		ReconnectGrace:    2 * time.Second,
		ReconnectAttempts: 3,
		ReconnectBase:     time.Second,
		ReconnectCap:      5 * time.Second,
		DebounceWindow:    20 * time.Millisecond,
		DedupCap:          500,
		DedupTTL:          time.Minute,
	}
}

type fakeSig struct {
	mu       sync.Mutex
	notified []string // packet types
	onPacket func(com.In)
	done     chan struct{}
	closed   bool
}

func newFakeSig() *fakeSig { return &fakeSig{done: make(chan struct{})} }

func (f *fakeSig) Call(t string, _ any) (com.In, error) {
	if t != api.JoinRoom {
		return com.In{}, errors.New("unexpected call " + t)
	}
	raw, _ := json.Marshal(api.JoinRoomSuccessReply{
		SessionID: "S123",
		UserID:    "alice",
		LiveKit:   api.LiveKitInfo{URL: "wss://media.test", RoomName: "meet-S123", AccessToken: "tok"},
	})
	return com.In{T: api.JoinRoomSuccess, Payload: raw}, nil
}

func (f *fakeSig) Notify(t string, _ any) {
	f.mu.Lock()
	f.notified = append(f.notified, t)
	f.mu.Unlock()
}
func (f *fakeSig) OnPacket(fn func(com.In)) { f.onPacket = fn }
func (f *fakeSig) Listen()                  {}
func (f *fakeSig) Wait() chan struct{}      { return f.done }
func (f *fakeSig) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeSig) notifiedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}

// drop simulates an unexpected transport loss.
func (f *fakeSig) drop() { f.Close() }

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeSig
	fail  bool
}

func (d *fakeDialer) dial() (Signaling, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("dial refused")
	}
	s := newFakeSig()
	d.conns = append(d.conns, s)
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type fakeTrack struct {
	id, kind string

	mu     sync.Mutex
	closed bool
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return t.kind }
func (t *fakeTrack) Unwrap() any  { return nil }
func (t *fakeTrack) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeCapture struct {
	err      error
	screenN  int
	screens  []*fakeTrack
	released bool
	mu       sync.Mutex
}

func (c *fakeCapture) Acquire() ([]LocalTrack, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []LocalTrack{
		&fakeTrack{id: "cam", kind: "video"},
		&fakeTrack{id: "mic", kind: "audio"},
	}, nil
}
func (c *fakeCapture) AcquireScreen() (LocalTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenN++
	t := &fakeTrack{id: fmt.Sprintf("screen-%d", c.screenN), kind: "video"}
	c.screens = append(c.screens, t)
	return t, nil
}
func (c *fakeCapture) Release() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}

type mutedCall struct {
	kind  string
	muted bool
}

type fakeRoom struct {
	mu          sync.Mutex
	connects    int
	published   []string // source names in publish order
	unpublished []string
	muteCalls   []mutedCall
	pubSeq      int
	ev          RoomEvents
}

func (r *fakeRoom) Connect(_ context.Context, _ media.Credential, ev RoomEvents) error {
	r.mu.Lock()
	r.connects++
	r.ev = ev
	r.mu.Unlock()
	return nil
}
func (r *fakeRoom) Publish(_ context.Context, _ LocalTrack, source string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubSeq++
	r.published = append(r.published, source)
	return fmt.Sprintf("pub-%d", r.pubSeq), nil
}
func (r *fakeRoom) Unpublish(trackID string) error {
	r.mu.Lock()
	r.unpublished = append(r.unpublished, trackID)
	r.mu.Unlock()
	return nil
}
func (r *fakeRoom) SetMuted(kind string, muted bool) error {
	r.mu.Lock()
	r.muteCalls = append(r.muteCalls, mutedCall{kind, muted})
	r.mu.Unlock()
	return nil
}
func (r *fakeRoom) Disconnect() {}

func (r *fakeRoom) mutes() []mutedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mutedCall(nil), r.muteCalls...)
}

func (r *fakeRoom) events() RoomEvents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ev
}

type rig struct {
	o      *Orchestrator
	dialer *fakeDialer
	room   *fakeRoom
	cap    *fakeCapture
	sleeps []time.Duration
	mu     sync.Mutex
}

func newRig(t *testing.T, events Events) *rig {
	t.Helper()
	r := &rig{dialer: &fakeDialer{}, room: &fakeRoom{}, cap: &fakeCapture{}}
	creds := NewCredentials("http://127.0.0.1:1", "platform-token") // refresh always fails fast
	r.o = New(testConf(), "platform-token", r.dialer.dial, r.cap, r.room, creds, events, logger.Default())
	r.o.sleep = func(d time.Duration) {
		r.mu.Lock()
		r.sleeps = append(r.sleeps, d)
		r.mu.Unlock()
	}
	return r
}

func (r *rig) join(t *testing.T) *fakeSig {
	t.Helper()
	if err := r.o.Join(context.Background(), "S123"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := r.o.State(); got != StateConnected {
		t.Fatalf("state after join = %v", got)
	}
	return r.dialer.conns[len(r.dialer.conns)-1]
}

func (r *rig) recordedSleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestJoinPublishesLocalTracks(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	r.join(t)

	r.room.mu.Lock()
	published := append([]string(nil), r.room.published...)
	connects := r.room.connects
	r.room.mu.Unlock()
	if connects != 1 {
		t.Fatalf("room connects = %d", connects)
	}
	if len(published) != 2 || published[0] != "camera" || published[1] != "microphone" {
		t.Fatalf("published = %v", published)
	}
	if cached := r.o.creds.Cached(); cached.AccessToken != "tok" {
		t.Errorf("credential not cached: %+v", cached)
	}
}

func TestJoinCaptureFailureIsClassified(t *testing.T) {
	t.Parallel()
	var fatalMsg string
	var mu sync.Mutex
	r := newRig(t, Events{OnFatal: func(m string) { mu.Lock(); fatalMsg = m; mu.Unlock() }})
	r.cap.err = ErrPermissionDenied

	if err := r.o.Join(context.Background(), "S123"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if r.o.State() != StateFatal {
		t.Fatalf("state = %v", r.o.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if fatalMsg == "" || fatalMsg == "could not access your camera or microphone" {
		t.Errorf("fatal message not specific: %q", fatalMsg)
	}
	if r.dialer.count() != 0 {
		t.Error("dialed signaling despite capture failure")
	}
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)
	r.dialer.mu.Lock()
	r.dialer.fail = true // every reconnection attempt fails
	r.dialer.mu.Unlock()

	sig.drop()
	waitFor(t, "fatal state", func() bool { return r.o.State() == StateFatal })

	// grace + three backoff delays: 1s, 2s, 4s — and nothing after
	want := []time.Duration{2 * time.Second, time.Second, 2 * time.Second, 4 * time.Second}
	got := r.recordedSleeps()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, got[i], want[i])
		}
	}
	if n := r.dialer.count(); n != 1 {
		t.Errorf("dial count = %d, want only the initial connection", n)
	}

	// terminal: another drop triggers nothing
	r.o.onConnectionLost()
	if len(r.recordedSleeps()) != len(want) {
		t.Error("reconnection attempted after terminal state")
	}
}

func TestMediaRoomDropTriggersReconnect(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	r.join(t)

	// the media room drops while the signaling socket is still up
	onDisconnect := r.room.events().OnDisconnect
	if onDisconnect == nil {
		t.Fatal("room connected without a disconnect handler")
	}
	go onDisconnect()
	waitFor(t, "reconnected", func() bool {
		return r.o.State() == StateConnected && r.dialer.count() == 2
	})

	r.room.mu.Lock()
	connects := r.room.connects
	r.room.mu.Unlock()
	if connects != 2 {
		t.Errorf("room connects = %d, want reattach", connects)
	}
}

func TestReconnectSucceedsAndRepublishes(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)

	sig.drop()
	waitFor(t, "reconnected", func() bool {
		return r.o.State() == StateConnected && r.dialer.count() == 2
	})

	r.room.mu.Lock()
	connects := r.room.connects
	published := len(r.room.published)
	r.room.mu.Unlock()
	if connects != 2 {
		t.Errorf("room connects = %d, want reattach", connects)
	}
	if published != 4 {
		t.Errorf("published %d tracks, want camera+mic twice", published)
	}
}

func TestReconnectNotDuplicated(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)

	// block the loop inside the grace sleep so a second trigger overlaps
	release := make(chan struct{})
	var sleeps int32
	var mu sync.Mutex
	r.o.sleep = func(time.Duration) {
		mu.Lock()
		sleeps++
		first := sleeps == 1
		mu.Unlock()
		if first {
			<-release
		}
	}
	sig.drop()
	waitFor(t, "loop started", func() bool { mu.Lock(); defer mu.Unlock(); return sleeps >= 1 })
	r.o.onConnectionLost() // second trigger while in flight
	close(release)
	waitFor(t, "reconnected", func() bool { return r.o.State() == StateConnected && r.dialer.count() >= 2 })

	if n := r.dialer.count(); n != 2 {
		t.Errorf("dial count = %d, a duplicated loop would redial twice", n)
	}
}

func TestLeaveCancelsEverything(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)
	r.o.dedup.Seen("k1")

	r.o.Leave()
	if r.o.State() != StateLeft {
		t.Fatalf("state = %v", r.o.State())
	}
	types := sig.notifiedTypes()
	if len(types) == 0 || types[len(types)-1] != api.LeaveRoom {
		t.Errorf("leave-room not sent: %v", types)
	}
	if !r.cap.released {
		t.Error("local tracks not released")
	}
	if r.o.dedup.Len() != 0 {
		t.Error("dedup cache not cleared")
	}
	if n := len(r.room.unpublished); n != 2 {
		t.Errorf("unpublished %d tracks, want 2", n)
	}
	// a drop arriving after leave must not start reconnection
	r.o.onConnectionLost()
	if r.o.State() != StateLeft {
		t.Error("leave did not stay terminal")
	}
}

func TestToggleStormAppliesOnce(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)

	for i := 0; i < 8; i++ {
		r.o.ToggleAudio(i%2 == 0) // ends with enabled=false
	}
	r.o.ToggleAudio(false)
	if r.o.AudioEnabled() {
		t.Fatal("local state must update immediately")
	}
	waitFor(t, "debounced apply", func() bool { return len(r.room.mutes()) > 0 })
	time.Sleep(3 * r.o.conf.DebounceWindow) // catch any extra transitions

	mutes := r.room.mutes()
	if len(mutes) != 1 {
		t.Fatalf("applied %d transitions, want exactly 1: %v", len(mutes), mutes)
	}
	if mutes[0].kind != "audio" || !mutes[0].muted {
		t.Errorf("applied = %+v, want audio muted", mutes[0])
	}
	found := false
	for _, n := range sig.notifiedTypes() {
		if n == api.ToggleMedia {
			found = true
		}
	}
	if !found {
		t.Error("presence broadcast not emitted after debounce")
	}
}

func TestScreenShareStopGuard(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	sig := r.join(t)

	if err := r.o.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.o.mu.Lock()
	firstID := r.o.shareTrack
	r.o.mu.Unlock()

	// the OS-level "stopped sharing" signal takes the same path as stop
	r.o.onLocalTrackEnded(firstID)
	waitFor(t, "unpublish", func() bool {
		r.room.mu.Lock()
		defer r.room.mu.Unlock()
		return len(r.room.unpublished) == 1
	})
	r.cap.mu.Lock()
	firstScreen := r.cap.screens[0]
	r.cap.mu.Unlock()
	if !firstScreen.isClosed() {
		t.Error("stopped share left the screen capture running")
	}

	if err := r.o.StartScreenShare(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.cap.mu.Lock()
	secondScreen := r.cap.screens[1]
	r.cap.mu.Unlock()
	if secondScreen.isClosed() {
		t.Error("new share's capture is not running")
	}
	// a late signal for the previous share is ignored
	r.o.onLocalTrackEnded(firstID)
	r.o.mu.Lock()
	sharing := r.o.sharing
	r.o.mu.Unlock()
	if !sharing {
		t.Error("stale capture-ended signal killed the new share")
	}

	starts := 0
	for _, n := range sig.notifiedTypes() {
		if n == api.StartScreenShare {
			starts++
		}
	}
	if starts != 2 {
		t.Errorf("start-screen-share notifications = %d", starts)
	}
}

func TestChatDedupAcrossPaths(t *testing.T) {
	t.Parallel()
	var got []api.ChatBroadcast
	var mu sync.Mutex
	r := newRig(t, Events{OnChat: func(b api.ChatBroadcast) {
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
	}})
	r.join(t)

	b := api.ChatBroadcast{ID: "m1", SessionID: "S123", Message: "hi", UserID: "bob",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
	raw, _ := json.Marshal(b)

	rendered := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got)
	}

	// same message over signaling and the side-channel, any order
	r.o.onPacket(com.In{T: api.ChatMessage, Payload: raw})
	r.o.onData(api.TopicChat, raw)
	r.o.onPacket(com.In{T: api.ChatMessage, Payload: raw})
	if rendered() != 1 {
		t.Fatalf("rendered %d times, want exactly once", rendered())
	}

	// a different message still gets through
	b2 := b
	b2.ID = "m2"
	raw2, _ := json.Marshal(b2)
	r.o.onData(api.TopicChat, raw2)
	if rendered() != 2 {
		t.Fatalf("second message suppressed: %d rendered", rendered())
	}
}

func TestCanvasMirrorReplaysOnOpen(t *testing.T) {
	t.Parallel()
	r := newRig(t, Events{})
	r.join(t)

	data, _ := json.Marshal(map[string]any{
		"kind": "rectangle",
		"from": map[string]float64{"x": 10, "y": 10},
		"to":   map[string]float64{"x": 110, "y": 90},
	})
	ev := api.CanvasEvent{
		SessionID: "S123", Type: "shape", Data: data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	// arrives twice (both paths) while the whiteboard is closed
	r.o.applyCanvasEvent(ev)
	r.o.applyCanvasEvent(ev)

	if err := r.o.OpenWhiteboard(); err != nil {
		t.Fatalf("open: %v", err)
	}
	wb := r.o.Whiteboard()
	if wb.ObjectCount() != 1 {
		t.Fatalf("replayed %d objects, want 1", wb.ObjectCount())
	}
	obj := wb.Scene()[0]
	if obj.BBox.Left != 10 || obj.BBox.Top != 10 || obj.BBox.Width != 100 || obj.BBox.Height != 80 {
		t.Errorf("bbox = %+v", obj.BBox)
	}

	// clear wipes the mirror; reopening shows an empty board
	r.o.applyCanvasClear(api.CanvasClearEvent{SessionID: "S123", Background: "#eeeeee"})
	if wb.ObjectCount() != 0 {
		t.Errorf("clear left %d objects", wb.ObjectCount())
	}
	r.o.CloseWhiteboard()
	if err := r.o.OpenWhiteboard(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if wb.ObjectCount() != 0 {
		t.Errorf("reopen replayed %d objects after clear", wb.ObjectCount())
	}
}
