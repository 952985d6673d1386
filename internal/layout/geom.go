package layout

import "math"

// Rect represents a window geometry in logical points, origin top-left.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"w" yaml:"w"`
	Height float64 `json:"h" yaml:"h"`
}

// Gaps represents outer and inner gaps applied during layout calculations.
type Gaps struct {
	Inner float64
	Outer float64
}

// Orientation describes how an internal tree node divides its rectangle.
type Orientation uint8

const (
	// SplitVertical places children side by side (a vertical divider).
	SplitVertical Orientation = iota
	// SplitHorizontal stacks children top and bottom.
	SplitHorizontal
)

func (o Orientation) String() string {
	if o == SplitHorizontal {
		return "horizontal"
	}
	return "vertical"
}

// Flip returns the opposite orientation.
func (o Orientation) Flip() Orientation {
	if o == SplitHorizontal {
		return SplitVertical
	}
	return SplitHorizontal
}

// ParseOrientation maps a config value onto an Orientation.
func ParseOrientation(s string) (Orientation, bool) {
	switch s {
	case "vertical", "v", "":
		return SplitVertical, true
	case "horizontal", "h":
		return SplitHorizontal, true
	default:
		return SplitVertical, false
	}
}

const (
	// DefaultRatio is the split ratio assigned to new internal nodes.
	DefaultRatio = 0.5
	MinRatio     = 0.1
	MaxRatio     = 0.9
)

// ClampRatio keeps ratio within [MinRatio, MaxRatio].
func ClampRatio(ratio float64) float64 {
	if math.IsNaN(ratio) {
		return DefaultRatio
	}
	return math.Max(MinRatio, math.Min(MaxRatio, ratio))
}

// Inset shrinks the rectangle by d on every side, never below zero size.
func (r Rect) Inset(d float64) Rect {
	if d == 0 {
		return r
	}
	r.X += d
	r.Y += d
	r.Width = math.Max(0, r.Width-2*d)
	r.Height = math.Max(0, r.Height-2*d)
	return r
}

// Area returns width times height.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the centre point of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Intersect returns the overlapping region of two rectangles.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Split divides r along orientation at ratio, leaving inner points between
// the two halves.
func Split(r Rect, orientation Orientation, ratio float64, inner float64) (Rect, Rect) {
	ratio = ClampRatio(ratio)
	first, second := r, r
	if orientation == SplitVertical {
		span := math.Max(0, r.Width-inner)
		first.Width = span * ratio
		second.X = r.X + first.Width + inner
		second.Width = span - first.Width
		return first, second
	}
	span := math.Max(0, r.Height-inner)
	first.Height = span * ratio
	second.Y = r.Y + first.Height + inner
	second.Height = span - first.Height
	return first, second
}

// ApproximatelyEqual reports whether two rects are almost equal.
func ApproximatelyEqual(a, b Rect, tolerance float64) bool {
	return math.Abs(a.X-b.X) <= tolerance && math.Abs(a.Y-b.Y) <= tolerance &&
		math.Abs(a.Width-b.Width) <= tolerance && math.Abs(a.Height-b.Height) <= tolerance
}
