package layout

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	winA = Key{PID: 100, WID: 1}
	winB = Key{PID: 100, WID: 2}
	winC = Key{PID: 200, WID: 3}
)

var screen = Rect{X: 0, Y: 0, Width: 1000, Height: 800}

func tileMap(tiles []Tile) map[Key]Rect {
	out := make(map[Key]Rect, len(tiles))
	for _, t := range tiles {
		out[t.Window] = t.Frame
	}
	return out
}

func TestTreeTwoWindowsDefaultVerticalSplit(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)

	if tree.Root.IsLeaf() {
		t.Fatalf("expected internal root after second insert")
	}
	got := tileMap(tree.Compute(screen, Gaps{}, nil))
	want := map[Key]Rect{
		winA: {X: 0, Y: 0, Width: 500, Height: 800},
		winB: {X: 500, Y: 0, Width: 500, Height: 800},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected tiles (-want +got):\n%s", diff)
	}
}

func TestTreeToggleSplitStacks(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)
	if !tree.ToggleSplit(winA) {
		t.Fatalf("expected toggle to succeed")
	}
	got := tileMap(tree.Compute(screen, Gaps{}, nil))
	want := map[Key]Rect{
		winA: {X: 0, Y: 0, Width: 1000, Height: 400},
		winB: {X: 0, Y: 400, Width: 1000, Height: 400},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected tiles (-want +got):\n%s", diff)
	}
}

func TestTreeToggleSplitSingleLeafIsNoop(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	if tree.ToggleSplit(winA) {
		t.Fatalf("expected toggle on lone leaf to fail")
	}
}

func TestTreeInsertDuplicateRejected(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	if tree.Insert(winA, Key{}) {
		t.Fatalf("expected duplicate insert to be rejected")
	}
	if tree.Len() != 1 {
		t.Fatalf("expected one leaf, got %d", tree.Len())
	}
}

func TestTreeRemovePromotesSibling(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)
	tree.Insert(winC, winB)

	if !tree.Remove(winB) {
		t.Fatalf("expected remove to succeed")
	}
	if tree.Remove(winB) {
		t.Fatalf("expected second remove to report absence")
	}
	if diff := cmp.Diff([]Key{winA, winC}, tree.Leaves()); diff != "" {
		t.Fatalf("unexpected leaves (-want +got):\n%s", diff)
	}
	got := tileMap(tree.Compute(screen, Gaps{}, nil))
	if got[winA].Width != 500 || got[winC].Width != 500 {
		t.Fatalf("expected halves after promotion, got %+v", got)
	}

	tree.Remove(winA)
	got = tileMap(tree.Compute(screen, Gaps{}, nil))
	if got[winC] != screen {
		t.Fatalf("expected lone window to fill screen, got %+v", got[winC])
	}
	tree.Remove(winC)
	if tree.Root != nil || tree.Len() != 0 {
		t.Fatalf("expected empty tree")
	}
}

func TestTreeHiddenLeafYieldsSpaceAndRestores(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)

	hidden := map[Key]bool{winA: true}
	visible := func(k Key) bool { return !hidden[k] }
	got := tileMap(tree.Compute(screen, Gaps{}, visible))
	if _, ok := got[winA]; ok {
		t.Fatalf("hidden window should not receive a tile")
	}
	if got[winB] != screen {
		t.Fatalf("expected visible sibling to take full frame, got %+v", got[winB])
	}

	delete(hidden, winA)
	got = tileMap(tree.Compute(screen, Gaps{}, visible))
	if got[winA] != (Rect{X: 0, Y: 0, Width: 500, Height: 800}) {
		t.Fatalf("expected window to return to left half, got %+v", got[winA])
	}
}

func TestTreeAdjustRatio(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)
	tree.AdjustRatio(winB, 0.1)
	got := tileMap(tree.Compute(screen, Gaps{}, nil))
	if math.Abs(got[winB].Width-600) > 1e-9 {
		t.Fatalf("expected B to grow to 600, got %v", got[winB].Width)
	}
	tree.AdjustRatio(winA, 5)
	if r := tree.Root.Ratio; r != MaxRatio {
		t.Fatalf("expected ratio clamped to %v, got %v", MaxRatio, r)
	}
}

func TestTreeComputeIsIdempotent(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)
	tree.Insert(winC, winA)
	first := tree.Compute(screen, Gaps{Inner: 4, Outer: 8}, nil)
	second := tree.Compute(screen, Gaps{Inner: 4, Outer: 8}, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compute not idempotent:\n%s", diff)
	}
}

func TestTreePartitionsFrame(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 12; n++ {
		var tree Tree
		keys := make([]Key, 0, n)
		for i := 0; i < n; i++ {
			k := Key{PID: 1, WID: uint32(i + 1)}
			var target Key
			if len(keys) > 0 {
				target = keys[rng.Intn(len(keys))]
			}
			tree.Orientation = Orientation(rng.Intn(2))
			tree.Ratio = 0.2 + rng.Float64()*0.6
			tree.Insert(k, target)
			keys = append(keys, k)
		}
		tiles := tree.Compute(screen, Gaps{}, nil)
		if len(tiles) != n {
			t.Fatalf("n=%d: expected %d tiles, got %d", n, n, len(tiles))
		}
		total := 0.0
		for i, a := range tiles {
			total += a.Frame.Area()
			if !ApproximatelyEqual(a.Frame.Intersect(screen), a.Frame, 1e-6) {
				t.Fatalf("n=%d: tile %+v escapes frame", n, a.Frame)
			}
			for _, b := range tiles[i+1:] {
				if ov := a.Frame.Intersect(b.Frame).Area(); ov > 1e-6 {
					t.Fatalf("n=%d: tiles %+v and %+v overlap by %v", n, a.Frame, b.Frame, ov)
				}
			}
		}
		if math.Abs(total-screen.Area()) > 1e-3 {
			t.Fatalf("n=%d: tile areas sum to %v, want %v", n, total, screen.Area())
		}
	}
}

func TestTreeCloneIsIndependent(t *testing.T) {
	var tree Tree
	tree.Insert(winA, Key{})
	tree.Insert(winB, winA)
	clone := tree.Clone()
	tree.ToggleSplit(winA)
	if clone.Root.Orientation == tree.Root.Orientation {
		t.Fatalf("expected clone to keep original orientation")
	}
}
