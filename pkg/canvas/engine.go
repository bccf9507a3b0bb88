package canvas

import (
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// drags smaller than this in both axes are accidental clicks
const minDragPx = 3.0

// Engine drives one participant's view of the shared canvas. A single
// controller emits operations; everyone else observes. Local operations by
// the controller apply optimistically before the broadcast completes, and
// remote application is idempotent by operation key.
type Engine struct {
	mu           sync.Mutex
	selfID       string
	controllerID string
	log          *Log
	surface      *Surface
	applied      map[Key]struct{}
	active       bool
	loaded       bool
	lastTS       int64
	now          func() time.Time
	emit         func(Operation)
	emitClear    func(background string)
}

// NewEngine wires the engine to its transmit callbacks. Both callbacks run
// synchronously under the engine lock and must not call back in.
func NewEngine(selfID string, emit func(Operation), emitClear func(background string)) *Engine {
	return &Engine{
		selfID:    selfID,
		log:       NewLog(),
		surface:   NewSurface(Metadata{}),
		applied:   make(map[Key]struct{}),
		now:       time.Now,
		emit:      emit,
		emitClear: emitClear,
	}
}

func (e *Engine) SetController(id string) {
	e.mu.Lock()
	e.controllerID = id
	e.mu.Unlock()
}

func (e *Engine) Controller() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controllerID
}

func (e *Engine) IsController() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controllerID == e.selfID
}

// Activate loads the canvas state exactly once: the local surface is cleared
// and the full log replayed in order. While the canvas stays active any
// further calls are no-ops; state updates arrive as incremental appends so
// that in-flight local edits are not destroyed by a reload. Deactivate resets
// the loaded flag.
func (e *Engine) Activate(ops []Operation, meta Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = true
	if e.loaded {
		return nil
	}
	s, err := Replay(ops, meta)
	if err != nil {
		return err
	}
	e.surface = s
	e.log.Reset()
	e.applied = make(map[Key]struct{}, len(ops))
	for i := range ops {
		e.log.Append(ops[i])
		e.applied[ops[i].Key()] = struct{}{}
	}
	e.loaded = true
	return nil
}

func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.active = false
	e.loaded = false
	e.mu.Unlock()
}

func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Draw emits a freehand path. Returns false when the caller is not the
// controller, the canvas is inactive, or the path is empty.
func (e *Engine) Draw(points []Point, stroke string, width float64) (Operation, bool) {
	if len(points) == 0 {
		return Operation{}, false
	}
	return e.local(OpDraw, DrawData{Path: pathString(points), Stroke: stroke, Width: width})
}

// Shape emits a bounded shape. Drags below the minimum pixel threshold in
// both axes are discarded as accidental clicks.
func (e *Engine) Shape(kind ShapeKind, from, to Point, stroke, fill string, width float64) (Operation, bool) {
	if math.Abs(to.X-from.X) < minDragPx && math.Abs(to.Y-from.Y) < minDragPx {
		return Operation{}, false
	}
	return e.local(OpShape, ShapeData{Kind: kind, From: from, To: to, Stroke: stroke, Fill: fill, Width: width})
}

// Text places an empty text box; content is edited in place via SetText.
func (e *Engine) Text(at Point, width, fontSize float64, fill string) (Operation, bool) {
	return e.local(OpText, TextData{At: at, Width: width, FontSize: fontSize, Fill: fill})
}

// SetText rewrites the content of an existing text box and re-emits the
// operation under its original key, so peers refresh rather than duplicate.
func (e *Engine) SetText(key Key, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.writable() || key.Type != OpText {
		return false
	}
	var updated *Operation
	ok := e.log.Update(key, func(op *Operation) {
		var d TextData
		if json.Unmarshal(op.Data, &d) != nil {
			return
		}
		d.Text = text
		*op = mustOp(OpText, d, op.Timestamp)
		updated = op
	})
	if !ok || updated == nil {
		return false
	}
	e.surface.setText(key.At, text)
	if e.emit != nil {
		e.emit(*updated)
	}
	return true
}

// Erase removes the topmost object containing the point. Nothing is emitted
// when no object is hit.
func (e *Engine) Erase(at Point) (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.writable() {
		return Operation{}, false
	}
	if !e.surface.eraseAt(at) {
		return Operation{}, false
	}
	op := mustOp(OpErase, EraseData{At: at}, e.stamp())
	e.log.Append(op)
	e.applied[op.Key()] = struct{}{}
	if e.emit != nil {
		e.emit(op)
	}
	return op, true
}

// Clear resets the log and the surface background, broadcast as one explicit
// event rather than as N deletes.
func (e *Engine) Clear(background string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.writable() {
		return false
	}
	e.reset(background)
	if e.emitClear != nil {
		e.emitClear(background)
	}
	return true
}

// ApplyRemote applies a peer's operation. An operation whose key was already
// applied is not reapplied; the exception is text, whose repeated key carries
// an in-place content edit.
func (e *Engine) ApplyRemote(op Operation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil
	}
	key := op.Key()
	if _, seen := e.applied[key]; seen {
		if op.Type == OpText {
			var d TextData
			if err := json.Unmarshal(op.Data, &d); err != nil {
				return err
			}
			e.log.Update(key, func(prev *Operation) { *prev = op })
			e.surface.setText(key.At, d.Text)
		}
		return nil
	}
	if err := e.surface.Apply(&op); err != nil {
		return err
	}
	e.log.Append(op)
	e.applied[key] = struct{}{}
	return nil
}

// ApplyRemoteClear handles a peer's clear event.
func (e *Engine) ApplyRemoteClear(background string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.reset(background)
}

// Ops snapshots the current log, the state handed to late joiners.
func (e *Engine) Ops() []Operation { return e.log.Ops() }

func (e *Engine) ObjectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.ObjectCount()
}

// Scene returns a copy of the current objects in paint order.
func (e *Engine) Scene() []Object {
	e.mu.Lock()
	defer e.mu.Unlock()
	objs := e.surface.Objects()
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = *o
	}
	return out
}

func (e *Engine) Background() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.Metadata().Background
}

// local stamps, applies optimistically, records the key and emits.
func (e *Engine) local(t OpType, data any) (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.writable() {
		return Operation{}, false
	}
	op := mustOp(t, data, e.stamp())
	if err := e.surface.Apply(&op); err != nil {
		return Operation{}, false
	}
	e.log.Append(op)
	e.applied[op.Key()] = struct{}{}
	if e.emit != nil {
		e.emit(op)
	}
	return op, true
}

func (e *Engine) writable() bool {
	return e.active && e.controllerID != "" && e.controllerID == e.selfID
}

func (e *Engine) reset(background string) {
	e.log.Reset()
	e.applied = make(map[Key]struct{})
	e.surface.Reset(background)
}

// stamp returns a strictly increasing timestamp; the wall clock is nudged
// forward a nanosecond when two operations land in the same instant, keeping
// operation keys unique.
func (e *Engine) stamp() time.Time {
	ts := e.now().UnixNano()
	if ts <= e.lastTS {
		ts = e.lastTS + 1
	}
	e.lastTS = ts
	return time.Unix(0, ts).UTC()
}
