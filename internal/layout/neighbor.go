package layout

import "math"

// Direction is a focus movement direction.
type Direction uint8

const (
	DirLeft Direction = iota
	DirRight
	DirUp
	DirDown
)

func (d Direction) String() string {
	switch d {
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	case DirUp:
		return "up"
	default:
		return "down"
	}
}

// ParseDirection maps a name onto a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "left", "west":
		return DirLeft, true
	case "right", "east":
		return DirRight, true
	case "up", "north":
		return DirUp, true
	case "down", "south":
		return DirDown, true
	default:
		return DirLeft, false
	}
}

const edgeEpsilon = 0.5

// Neighbor picks the tile geometrically adjacent to from in direction d.
// Tiles whose span overlaps from on the perpendicular axis are preferred;
// among them the nearest edge wins, then the larger overlap. When nothing
// overlaps, the tile with the nearest centre on that side is chosen.
func Neighbor(tiles []Tile, from Key, d Direction) (Key, bool) {
	var origin Rect
	found := false
	for _, t := range tiles {
		if t.Window == from {
			origin = t.Frame
			found = true
			break
		}
	}
	if !found {
		return Key{}, false
	}

	var (
		best        Key
		bestDist    = math.Inf(1)
		bestOverlap = -1.0
		fallback    Key
		fallbackD   = math.Inf(1)
	)
	ox, oy := origin.Center()
	for _, t := range tiles {
		if t.Window == from {
			continue
		}
		dist, overlap, ok := edgeDistance(origin, t.Frame, d)
		if !ok {
			continue
		}
		if overlap > 0 {
			if dist < bestDist-edgeEpsilon || (math.Abs(dist-bestDist) <= edgeEpsilon && overlap > bestOverlap) {
				best, bestDist, bestOverlap = t.Window, dist, overlap
			}
			continue
		}
		cx, cy := t.Frame.Center()
		if cd := math.Hypot(cx-ox, cy-oy); cd < fallbackD {
			fallback, fallbackD = t.Window, cd
		}
	}
	if bestOverlap >= 0 {
		return best, true
	}
	if !math.IsInf(fallbackD, 1) {
		return fallback, true
	}
	return Key{}, false
}

// edgeDistance reports the gap between from's edge facing d and the opposite
// edge of to, plus their overlap on the perpendicular axis. ok is false when
// to does not lie on the d side of from.
func edgeDistance(from, to Rect, d Direction) (dist, overlap float64, ok bool) {
	switch d {
	case DirLeft:
		if to.Right() > from.X+edgeEpsilon {
			return 0, 0, false
		}
		return from.X - to.Right(), spanOverlap(from.Y, from.Bottom(), to.Y, to.Bottom()), true
	case DirRight:
		if to.X < from.Right()-edgeEpsilon {
			return 0, 0, false
		}
		return to.X - from.Right(), spanOverlap(from.Y, from.Bottom(), to.Y, to.Bottom()), true
	case DirUp:
		if to.Bottom() > from.Y+edgeEpsilon {
			return 0, 0, false
		}
		return from.Y - to.Bottom(), spanOverlap(from.X, from.Right(), to.X, to.Right()), true
	default:
		if to.Y < from.Bottom()-edgeEpsilon {
			return 0, 0, false
		}
		return to.Y - from.Bottom(), spanOverlap(from.X, from.Right(), to.X, to.Right()), true
	}
}

func spanOverlap(a0, a1, b0, b1 float64) float64 {
	return math.Max(0, math.Min(a1, b1)-math.Max(a0, b0))
}
