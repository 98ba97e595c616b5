package automata

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/hashing"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/scheduler"
)

// NewSwapFunc builds a scheduler.SwapFunc bound to registry implementing the
// per-material swap rules of spec.md §4.4(iii): powder falls straight down
// then diagonally, liquids additionally spread horizontally and sink
// through less-dense liquids, gas is inverted powder, solids never swap.
// Pixels carrying FlagPixelBody are opaque to the simulator and never moved.
func NewSwapFunc(registry *material.Registry) scheduler.SwapFunc {
	return func(pos coords.WorldPos, canvas *scheduler.Canvas, tick uint64) (coords.WorldPos, bool) {
		p, ok := canvas.Get(pos)
		if !ok || p.IsVoid() || p.Has(pixel.FlagPixelBody) {
			return coords.WorldPos{}, false
		}
		mat := registry.Get(p.Material)

		switch mat.State {
		case material.Solid:
			return coords.WorldPos{}, false
		case material.Gas:
			return swapVertical(pos, canvas, registry, mat, tick, -1)
		case material.Powder:
			return swapVertical(pos, canvas, registry, mat, tick, 1)
		case material.Liquid:
			if target, ok := swapVertical(pos, canvas, registry, mat, tick, 1); ok {
				return target, true
			}
			return swapHorizontal(pos, canvas, registry, mat, tick)
		default:
			return coords.WorldPos{}, false
		}
	}
}

// canDisplace reports whether a mover of material `mover` may swap into a
// cell currently holding `target`: void always yields, and a denser liquid
// sinks through a less dense one.
func canDisplace(registry *material.Registry, mover, target pixel.Pixel) bool {
	if target.Has(pixel.FlagPixelBody) {
		return false
	}
	if target.IsVoid() {
		return true
	}
	moverMat := registry.Get(mover.Material)
	targetMat := registry.Get(target.Material)
	if moverMat.State == material.Liquid && targetMat.State == material.Liquid {
		return moverMat.Density > targetMat.Density
	}
	if moverMat.State == material.Powder && targetMat.State == material.Liquid {
		return moverMat.Density > targetMat.Density
	}
	return false
}

// swapVertical tries straight-down (dir=1) or straight-up (dir=-1) first,
// then the two diagonals in a hash-chosen order, honoring air resistance
// (a chance to skip the move entirely) and air drift (a chance to prefer
// the diagonal over straight movement).
func swapVertical(pos coords.WorldPos, canvas *scheduler.Canvas, registry *material.Registry, mat material.Material, tick uint64, dir int64) (coords.WorldPos, bool) {
	if mat.AirResistance > 0 && hashing.OneIn(tick, uint64(pos.X)^uint64(pos.Y)<<1, mat.AirResistance) {
		return coords.WorldPos{}, false
	}

	p, _ := canvas.Get(pos)
	straight := coords.WorldPos{X: pos.X, Y: pos.Y + dir}
	preferDiagonal := mat.AirDrift > 0 && hashing.OneIn(tick, uint64(pos.X)<<1^uint64(pos.Y), mat.AirDrift)

	if !preferDiagonal {
		if sp, ok := canvas.Get(straight); ok && canDisplace(registry, p, sp) {
			return straight, true
		}
	}

	firstLeft := hashing.Bool2(tick, uint64(pos.X)^uint64(pos.Y))
	diag1 := coords.WorldPos{X: pos.X - 1, Y: pos.Y + dir}
	diag2 := coords.WorldPos{X: pos.X + 1, Y: pos.Y + dir}
	if !firstLeft {
		diag1, diag2 = diag2, diag1
	}
	if dp, ok := canvas.Get(diag1); ok && canDisplace(registry, p, dp) {
		return diag1, true
	}
	if dp, ok := canvas.Get(diag2); ok && canDisplace(registry, p, dp) {
		return diag2, true
	}

	if preferDiagonal {
		if sp, ok := canvas.Get(straight); ok && canDisplace(registry, p, sp) {
			return straight, true
		}
	}
	return coords.WorldPos{}, false
}

// swapHorizontal spreads a liquid sideways up to Dispersion cells, in a
// hash-chosen direction, stopping at the first non-displaceable cell.
func swapHorizontal(pos coords.WorldPos, canvas *scheduler.Canvas, registry *material.Registry, mat material.Material, tick uint64) (coords.WorldPos, bool) {
	if mat.Dispersion == 0 {
		return coords.WorldPos{}, false
	}
	p, _ := canvas.Get(pos)
	dir := int64(1)
	if !hashing.Bool2(tick, uint64(pos.X)^uint64(pos.Y)<<2) {
		dir = -1
	}

	for step := int64(1); step <= int64(mat.Dispersion); step++ {
		target := coords.WorldPos{X: pos.X + dir*step, Y: pos.Y}
		tp, ok := canvas.Get(target)
		if !ok {
			break
		}
		if tp.IsVoid() {
			return target, true
		}
		if !canDisplace(registry, p, tp) {
			break
		}
	}
	return coords.WorldPos{}, false
}
