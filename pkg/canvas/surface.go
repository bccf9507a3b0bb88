package canvas

import (
	"fmt"

	"github.com/goccy/go-json"
)

// text boxes without an explicit size render at 16px
const defaultFontSize = 16.0

// Object is one visible scene element produced by replaying the log.
type Object struct {
	ID     int64 // creation timestamp (UnixNano) of the producing operation
	Type   OpType
	Kind   ShapeKind // shapes only
	BBox   Rect
	Stroke string
	Fill   string
	Width  float64
	Path   []Point // draw only
	Text   string  // text only
}

// Surface holds the current visible scene in log order. Replaying the full
// log from an empty surface reproduces the same scene as incremental live
// application.
type Surface struct {
	objects []*Object
	meta    Metadata
}

func NewSurface(meta Metadata) *Surface {
	if meta.Background == "" {
		meta.Background = DefaultBackground
	}
	return &Surface{meta: meta}
}

func (s *Surface) Metadata() Metadata { return s.meta }
func (s *Surface) ObjectCount() int   { return len(s.objects) }

// Objects returns the scene in paint order; callers must not mutate.
func (s *Surface) Objects() []*Object { return s.objects }

// Reset empties the scene and restores the background.
func (s *Surface) Reset(background string) {
	s.objects = nil
	if background == "" {
		background = DefaultBackground
	}
	s.meta.Background = background
}

// Apply mutates the scene with a single operation.
func (s *Surface) Apply(op *Operation) error {
	id := op.Timestamp.UnixNano()
	switch op.Type {
	case OpDraw:
		var d DrawData
		if err := json.Unmarshal(op.Data, &d); err != nil {
			return fmt.Errorf("draw data: %w", err)
		}
		points := parsePath(d.Path)
		s.objects = append(s.objects, &Object{
			ID: id, Type: OpDraw, BBox: pathBounds(points),
			Stroke: d.Stroke, Width: d.Width, Path: points,
		})
	case OpShape:
		var d ShapeData
		if err := json.Unmarshal(op.Data, &d); err != nil {
			return fmt.Errorf("shape data: %w", err)
		}
		s.objects = append(s.objects, &Object{
			ID: id, Type: OpShape, Kind: d.Kind, BBox: rectFromDrag(d.From, d.To),
			Stroke: d.Stroke, Fill: d.Fill, Width: d.Width,
		})
	case OpText:
		var d TextData
		if err := json.Unmarshal(op.Data, &d); err != nil {
			return fmt.Errorf("text data: %w", err)
		}
		if d.FontSize <= 0 {
			d.FontSize = defaultFontSize
		}
		height := d.FontSize * 1.2
		s.objects = append(s.objects, &Object{
			ID: id, Type: OpText, BBox: Rect{Left: d.At.X, Top: d.At.Y, Width: d.Width, Height: height},
			Fill: d.Fill, Width: d.FontSize, Text: d.Text,
		})
	case OpErase:
		var d EraseData
		if err := json.Unmarshal(op.Data, &d); err != nil {
			return fmt.Errorf("erase data: %w", err)
		}
		s.eraseAt(d.At)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}

// setText rewrites the content of an existing text object in place.
func (s *Surface) setText(id int64, text string) bool {
	for _, o := range s.objects {
		if o.ID == id && o.Type == OpText {
			o.Text = text
			return true
		}
	}
	return false
}

// eraseAt removes the topmost object whose geometry contains the point
// (hit-test, not area intersection).
func (s *Surface) eraseAt(p Point) bool {
	for i := len(s.objects) - 1; i >= 0; i-- {
		if s.objects[i].hit(p) {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Object) hit(p Point) bool {
	switch o.Type {
	case OpDraw:
		return pathHit(p, o.Path, o.Width)
	case OpText:
		return o.BBox.contains(p)
	case OpShape:
		switch o.Kind {
		case ShapeRectangle:
			return o.BBox.contains(p)
		case ShapeCircle:
			return ellipseHit(p, o.BBox)
		case ShapeTriangle:
			return triangleHit(p, o.BBox)
		case ShapeLine:
			a := Point{X: o.BBox.Left, Y: o.BBox.Top}
			b := Point{X: o.BBox.Left + o.BBox.Width, Y: o.BBox.Top + o.BBox.Height}
			return segmentDistance(p, a, b) <= o.Width/2+strokeSlop
		}
	}
	return false
}
