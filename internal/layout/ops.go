package layout

import (
	"context"
	"errors"
	"fmt"
)

// Placer moves and resizes a single window.
type Placer interface {
	SetWindowFrame(ctx context.Context, pid int32, wid uint32, frame Rect) error
}

// Placement assigns a frame to one window.
type Placement struct {
	Window Key  `json:"window"`
	Frame  Rect `json:"frame"`
}

// Plan is an ordered collection of placements produced by a retile.
type Plan struct {
	Placements []Placement
}

// Add appends a placement.
func (p *Plan) Add(k Key, frame Rect) {
	p.Placements = append(p.Placements, Placement{Window: k, Frame: frame})
}

// Merge merges other plan into this one.
func (p *Plan) Merge(other Plan) {
	p.Placements = append(p.Placements, other.Placements...)
}

// Len returns the number of placements.
func (p Plan) Len() int { return len(p.Placements) }

// PlacementError records one failed placement.
type PlacementError struct {
	Window Key
	Err    error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place window %s: %v", e.Window, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// Execute applies every placement independently. A failure never stops the
// remaining placements; all failures are joined into the returned error.
func (p Plan) Execute(ctx context.Context, placer Placer) error {
	var errs []error
	for _, pl := range p.Placements {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := placer.SetWindowFrame(ctx, pl.Window.PID, pl.Window.WID, pl.Frame); err != nil {
			errs = append(errs, &PlacementError{Window: pl.Window, Err: err})
		}
	}
	return errors.Join(errs...)
}
