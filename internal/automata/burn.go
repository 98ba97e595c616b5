package automata

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/hashing"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/scheduler"
)

var burnCardinal = [4]struct{ dx, dy int64 }{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// BurnContext carries everything a burn step needs that doesn't change
// pixel-to-pixel: the material table, the tuned heat config, and the
// tick rate used to convert it to per-tick probabilities.
type BurnContext struct {
	Registry *material.Registry
	Heat     HeatConfig
	TPS      float32
}

// NewBurnStep builds a scheduler.BurnStep closure bound to ctx: it attempts
// cardinal fire spread, then independently rolls the material's on_burn
// effect, mirroring spec.md §4.4(ii). The on_burn roll uses the triggering
// material's own per-tick Chance, taken as-is from the material registry.
// HeatConfig.BurnDurationSecs and HeatConfig.AshChancePerTick do not enter
// this roll, so the burn duration does not scale with the configured tick
// rate.
func NewBurnStep(ctx BurnContext) scheduler.BurnStep {
	spreadChance := ctx.Heat.SpreadChancePerTick(ctx.TPS)

	return func(pos coords.WorldPos, canvas *scheduler.Canvas, tick uint64) []coords.WorldPos {
		p, ok := canvas.Get(pos)
		if !ok || !p.Has(pixel.FlagBurning) {
			return nil
		}

		var touched []coords.WorldPos

		for i, d := range burnCardinal {
			npos := coords.WorldPos{X: pos.X + d.dx, Y: pos.Y + d.dy}
			np, ok := canvas.Get(npos)
			if !ok || np.IsVoid() || np.Has(pixel.FlagBurning) || np.Has(pixel.FlagWet) {
				continue
			}
			mat := canvasMaterial(ctx.Registry, np)
			if mat.IgnitionThreshold == 0 {
				continue
			}
			salt := uint64(i) + 1
			if hashing.Chance(tick, hashing.Hash2(uint64(npos.X), uint64(npos.Y))^salt, spreadChance) {
				np = np.Set(pixel.FlagBurning)
				if canvas.Set(npos, np) {
					touched = append(touched, npos)
				}
			}
		}

		mat := canvasMaterial(ctx.Registry, p)
		if mat.Effects.OnBurn.HasValue {
			salt := hashing.Hash2(uint64(pos.X), uint64(pos.Y))
			if hashing.Chance(tick, salt, float64(mat.Effects.OnBurn.Chance)) {
				applyBurnEffect(canvas, pos, p, mat.Effects.OnBurn)
				touched = append(touched, pos)
			}
		}

		return touched
	}
}

func canvasMaterial(registry *material.Registry, p pixel.Pixel) material.Material {
	return registry.Get(p.Material)
}

// applyBurnEffect applies a material's on_burn response: Destroy clears the
// pixel to void, Transform swaps its material (keeping flags except
// BURNING), Resist leaves it unchanged.
func applyBurnEffect(canvas *scheduler.Canvas, pos coords.WorldPos, p pixel.Pixel, effect material.BurnEffect) {
	switch effect.Effect {
	case material.EffectDestroy:
		canvas.Set(pos, pixel.VoidPixel)
	case material.EffectTransform:
		p.Material = effect.Target
		p = p.Clear(pixel.FlagBurning)
		canvas.Set(pos, p)
	case material.EffectResist:
		// no change
	}
}
