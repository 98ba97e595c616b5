package pixelbody

import (
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/scheduler"
)

// Submerged is emitted when a body's sampled liquid fraction rises through
// the submergence threshold.
type Submerged struct {
	Body     StableID
	Fraction float64
}

// Surfaced is emitted when a body's sampled liquid fraction falls back
// below the submergence threshold.
type Surfaced struct {
	Body StableID
}

// LiquidFraction samples every currently-blitted world position of b and
// returns the fraction whose underlying material is in the Liquid state
// (sampling what's under the body, not the body's own pixels, since those
// carry FlagPixelBody rather than the liquid's material).
func LiquidFraction(canvas *scheduler.Canvas, b *PixelBody, registry *material.Registry) float64 {
	if len(b.lastBlit) == 0 {
		return 0
	}
	liquidCount := 0
	for _, rec := range b.lastBlit {
		p, ok := canvas.Get(rec.pos)
		if !ok {
			continue
		}
		if registry.Get(p.Material).State == material.Liquid {
			liquidCount++
		}
	}
	return float64(liquidCount) / float64(len(b.lastBlit))
}

// SubmergenceTracker remembers, per body, whether it was submerged as of
// the last sample, so Sample can emit an event only on a threshold
// crossing rather than every tick a body happens to be wet.
type SubmergenceTracker struct {
	threshold float64
	submerged map[StableID]bool
}

// NewSubmergenceTracker builds a tracker that considers a body submerged
// once its liquid fraction is >= threshold.
func NewSubmergenceTracker(threshold float64) *SubmergenceTracker {
	return &SubmergenceTracker{threshold: threshold, submerged: make(map[StableID]bool)}
}

// Sample computes b's current liquid fraction and returns the event (if
// any) its crossing produced.
func (t *SubmergenceTracker) Sample(canvas *scheduler.Canvas, b *PixelBody, registry *material.Registry) []any {
	fraction := LiquidFraction(canvas, b, registry)
	wasSubmerged := t.submerged[b.StableID]
	isSubmerged := fraction >= t.threshold
	t.submerged[b.StableID] = isSubmerged

	if isSubmerged && !wasSubmerged {
		return []any{Submerged{Body: b.StableID, Fraction: fraction}}
	}
	if !isSubmerged && wasSubmerged {
		return []any{Surfaced{Body: b.StableID}}
	}
	return nil
}

// Forget drops tracked state for a despawned body.
func (t *SubmergenceTracker) Forget(id StableID) {
	delete(t.submerged, id)
}
