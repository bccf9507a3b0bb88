package gateway

import (
	"sync"

	"github.com/liveclass/liveclass/pkg/api"
)

// canvasState retains each session's whiteboard operation log so a
// participant who joins after drawing started can still replay it. A clear
// wipes the retained ops and is itself retained, so late joiners see the
// post-clear background. State is pruned when the session's last
// participant leaves; it is never persisted.
type canvasState struct {
	mu    sync.Mutex
	ops   map[string][]api.CanvasEvent
	clear map[string]api.CanvasClearEvent
}

func newCanvasState() *canvasState {
	return &canvasState{
		ops:   make(map[string][]api.CanvasEvent),
		clear: make(map[string]api.CanvasClearEvent),
	}
}

func (c *canvasState) Append(ev api.CanvasEvent) {
	c.mu.Lock()
	c.ops[ev.SessionID] = append(c.ops[ev.SessionID], ev)
	c.mu.Unlock()
}

func (c *canvasState) Clear(ev api.CanvasClearEvent) {
	c.mu.Lock()
	delete(c.ops, ev.SessionID)
	c.clear[ev.SessionID] = ev
	c.mu.Unlock()
}

// Snapshot returns the last clear (if any) and the ops recorded since it.
func (c *canvasState) Snapshot(sessionID string) (*api.CanvasClearEvent, []api.CanvasEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var clear *api.CanvasClearEvent
	if ev, ok := c.clear[sessionID]; ok {
		clear = &ev
	}
	return clear, append([]api.CanvasEvent(nil), c.ops[sessionID]...)
}

func (c *canvasState) Prune(sessionID string) {
	c.mu.Lock()
	delete(c.ops, sessionID)
	delete(c.clear, sessionID)
	c.mu.Unlock()
}
