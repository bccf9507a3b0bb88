// Package canvas implements the shared whiteboard: an ordered operation log
// written by a single controller and replayed by every observer.
package canvas

import (
	"time"

	"github.com/goccy/go-json"
)

type OpType string

const (
	OpDraw  OpType = "draw"
	OpShape OpType = "shape"
	OpText  OpType = "text"
	OpErase OpType = "erase"
)

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeTriangle  ShapeKind = "triangle"
	ShapeLine      ShapeKind = "line"
)

// Operation is one log entry. The timestamp assigned at creation is both the
// log ordering key and the idempotency key for peers; it relies on the
// controller's wall clock (no logical clock — see the known skew caveat).
type Operation struct {
	Type      OpType          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Key identifies an operation for idempotent application.
type Key struct {
	Type OpType
	At   int64 // UnixNano of the creation timestamp
}

func (o *Operation) Key() Key { return Key{Type: o.Type, At: o.Timestamp.UnixNano()} }

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type (
	// DrawData is a freehand path: a vector path description plus stroke.
	DrawData struct {
		Path   string  `json:"path"` // "M x y L x y ..." point list
		Stroke string  `json:"stroke"`
		Width  float64 `json:"width"`
	}
	// ShapeData is defined by the bounding drag box from From to To.
	ShapeData struct {
		Kind   ShapeKind `json:"kind"`
		From   Point     `json:"from"`
		To     Point     `json:"to"`
		Stroke string    `json:"stroke"`
		Fill   string    `json:"fill,omitempty"`
		Width  float64   `json:"width"`
	}
	// TextData is a text box anchored at a drag-defined position/width.
	// It starts empty and is edited in place by the controller.
	TextData struct {
		At       Point   `json:"at"`
		Width    float64 `json:"width"`
		FontSize float64 `json:"fontSize"`
		Fill     string  `json:"fill"`
		Text     string  `json:"text"`
	}
	// EraseData removes the topmost object whose geometry contains At.
	EraseData struct {
		At Point `json:"at"`
	}
)

// Metadata describes the surface itself.
type Metadata struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Background string  `json:"backgroundColor"`
}

const DefaultBackground = "#ffffff"

func mustOp(t OpType, data any, ts time.Time) Operation {
	raw, _ := json.Marshal(data)
	return Operation{Type: t, Data: raw, Timestamp: ts}
}
