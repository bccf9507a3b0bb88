package client

import (
	"time"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/canvas"
)

// The orchestrator mirrors every canvas operation it sees into a session
// log, whether or not the whiteboard is open. Opening the whiteboard
// replays that mirror into the engine exactly once; while it stays open the
// engine receives incremental appends only.

// Whiteboard exposes the canvas engine; nil until the join handshake has
// established the local identity.
func (o *Orchestrator) Whiteboard() *canvas.Engine {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine
}

// SetCanvasController designates the single participant allowed to draw.
func (o *Orchestrator) SetCanvasController(userID string) {
	if e := o.Whiteboard(); e != nil {
		e.SetController(userID)
	}
}

// OpenWhiteboard activates the canvas, loading the mirrored log.
func (o *Orchestrator) OpenWhiteboard() error {
	e := o.Whiteboard()
	if e == nil {
		return ErrNotConnected
	}
	o.canvasMu.Lock()
	ops := o.canvasLog.Ops()
	meta := o.canvasMeta
	o.canvasMu.Unlock()
	return e.Activate(ops, meta)
}

// CloseWhiteboard deactivates the canvas; reopening reloads from the mirror.
func (o *Orchestrator) CloseWhiteboard() {
	if e := o.Whiteboard(); e != nil {
		e.Deactivate()
	}
}

// applyCanvasEvent records a remote operation into the mirror and feeds the
// engine. Duplicate keys are not re-recorded; a repeated text key replaces
// the mirrored entry, matching the engine's edit-in-place semantics.
func (o *Orchestrator) applyCanvasEvent(ev api.CanvasEvent) {
	ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
	if err != nil {
		o.log.Warn().Msgf("canvas op with bad timestamp %q", ev.Timestamp)
		return
	}
	op := canvas.Operation{Type: canvas.OpType(ev.Type), Data: ev.Data, Timestamp: ts}
	key := op.Key()

	o.canvasMu.Lock()
	if _, seen := o.canvasSeen[key]; seen {
		if op.Type == canvas.OpText {
			o.canvasLog.Update(key, func(prev *canvas.Operation) { *prev = op })
		}
	} else {
		o.canvasSeen[key] = struct{}{}
		o.canvasLog.Append(op)
	}
	o.canvasMu.Unlock()

	if e := o.Whiteboard(); e != nil {
		if err := e.ApplyRemote(op); err != nil {
			o.log.Warn().Err(err).Msg("canvas apply")
		}
	}
}

func (o *Orchestrator) applyCanvasClear(ev api.CanvasClearEvent) {
	o.canvasMu.Lock()
	o.canvasLog.Reset()
	o.canvasSeen = make(map[canvas.Key]struct{})
	o.canvasMeta.Background = ev.Background
	o.canvasMu.Unlock()
	if e := o.Whiteboard(); e != nil {
		e.ApplyRemoteClear(ev.Background)
	}
}

// emitCanvasOp transmits a local (controller) operation and mirrors it, so
// a reopen after deactivation replays our own edits too.
func (o *Orchestrator) emitCanvasOp(op canvas.Operation) {
	key := op.Key()
	o.canvasMu.Lock()
	if _, seen := o.canvasSeen[key]; seen {
		o.canvasLog.Update(key, func(prev *canvas.Operation) { *prev = op })
	} else {
		o.canvasSeen[key] = struct{}{}
		o.canvasLog.Append(op)
	}
	o.canvasMu.Unlock()

	o.mu.Lock()
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig == nil {
		return
	}
	sig.Notify(api.CanvasDraw, api.CanvasEvent{
		SessionID: sessionID,
		Type:      string(op.Type),
		Data:      op.Data,
		Timestamp: op.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (o *Orchestrator) emitCanvasClear(background string) {
	o.canvasMu.Lock()
	o.canvasLog.Reset()
	o.canvasSeen = make(map[canvas.Key]struct{})
	o.canvasMeta.Background = background
	o.canvasMu.Unlock()

	o.mu.Lock()
	sig, sessionID := o.sig, o.sessionID
	o.mu.Unlock()
	if sig == nil {
		return
	}
	sig.Notify(api.CanvasClear, api.CanvasClearEvent{
		SessionID:  sessionID,
		Background: background,
		Timestamp:  o.now().UTC().Format(time.RFC3339Nano),
	})
}
