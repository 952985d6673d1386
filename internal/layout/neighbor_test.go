package layout

import "testing"

func TestNeighborGeometric(t *testing.T) {
	// A occupies the left half; B and C stack on the right.
	tiles := []Tile{
		{Window: winA, Frame: Rect{X: 0, Y: 0, Width: 500, Height: 800}},
		{Window: winB, Frame: Rect{X: 500, Y: 0, Width: 500, Height: 400}},
		{Window: winC, Frame: Rect{X: 500, Y: 400, Width: 500, Height: 400}},
	}
	tests := []struct {
		name string
		from Key
		dir  Direction
		want Key
		ok   bool
	}{
		{"right of A keeps the first equal candidate", winA, DirRight, winB, true},
		{"left of C reaches A", winC, DirLeft, winA, true},
		{"down from B", winB, DirDown, winC, true},
		{"up from C", winC, DirUp, winB, true},
		{"nothing left of A", winA, DirLeft, Key{}, false},
		{"nothing above B", winB, DirUp, Key{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Neighbor(tiles, tt.from, tt.dir)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Neighbor(%v, %v) = %v,%v; want %v,%v", tt.from, tt.dir, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNeighborUnknownOrigin(t *testing.T) {
	if _, ok := Neighbor(nil, winA, DirRight); ok {
		t.Fatalf("expected no neighbor for unknown origin")
	}
}

func TestParseDirection(t *testing.T) {
	for _, name := range []string{"left", "right", "up", "down"} {
		d, ok := ParseDirection(name)
		if !ok || d.String() != name {
			t.Fatalf("ParseDirection(%q) = %v, %v", name, d, ok)
		}
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Fatalf("expected unknown direction to fail")
	}
}
