// Package automata implements the three ordered per-tick physics phases
// that run over a scheduler.Canvas: heat diffusion/ignition, burn
// propagation, and the powder/liquid/gas/solid swap pass (spec.md §4.4).
package automata

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/scheduler"
	"github.com/api-haus/pixelworld/internal/world"
)

// heatCellSize is the edge length, in pixels, of one heat-grid cell.
const heatCellSize = coords.ChunkSize / world.HeatGridSize

// HeatConfig tunes heat diffusion, ignition, fire spread, and burn duration.
// Rate parameters are tick-rate independent: they express real-world-time
// behavior and are converted to per-tick probabilities against the
// configured ticks-per-second at the call site.
type HeatConfig struct {
	CoolingFactor    float32
	BurningHeat      uint8
	SpreadRate       float32
	BurnDurationSecs float32
}

// NewHeatConfig returns the default tuning.
func NewHeatConfig() HeatConfig {
	return HeatConfig{
		CoolingFactor:    0.95,
		BurningHeat:      50,
		SpreadRate:       2.0,
		BurnDurationSecs: 5.0,
	}
}

const numCardinalNeighbors = 4.0

// SpreadChancePerTick converts SpreadRate into the per-tick, per-neighbor
// probability a burning pixel ignites one cardinal neighbor.
func (c HeatConfig) SpreadChancePerTick(tps float32) float64 {
	p := c.SpreadRate / (numCardinalNeighbors * tps)
	if p > 1 {
		p = 1
	}
	return float64(p)
}

// AshChancePerTick converts BurnDurationSecs into the per-tick probability a
// burning pixel's on_burn effect fires.
func (c HeatConfig) AshChancePerTick(tps float32) float64 {
	p := 1.0 / (c.BurnDurationSecs * tps)
	if p > 1 {
		p = 1
	}
	return float64(p)
}

var heatCardinal = [4]struct{ dx, dy int }{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func accumulateCellHeatSources(ch *world.Chunk, registry *material.Registry, hx, hy int, burningHeat uint8) (source uint32, solidCount uint32) {
	baseX, baseY := hx*heatCellSize, hy*heatCellSize
	for dy := 0; dy < heatCellSize; dy++ {
		for dx := 0; dx < heatCellSize; dx++ {
			p := ch.Get(coords.LocalPos{X: uint16(baseX + dx), Y: uint16(baseY + dy)})
			if p.IsVoid() {
				continue
			}
			solidCount++
			mat := registry.Get(p.Material)
			source += uint32(mat.BaseTemperature)
			if p.Has(pixel.FlagBurning) {
				source += uint32(burningHeat)
			}
		}
	}
	return source, solidCount
}

func sampleHeatNeighbors(canvas *scheduler.Canvas, cpos coords.ChunkPos, ch *world.Chunk, hx, hy int) (sum uint32, count uint32) {
	for _, d := range heatCardinal {
		nx, ny := hx+d.dx, hy+d.dy
		var heat uint8
		if nx >= 0 && nx < world.HeatGridSize && ny >= 0 && ny < world.HeatGridSize {
			heat = ch.HeatGrid[ny*world.HeatGridSize+nx]
		} else {
			ncpos := cpos
			wx, wy := nx, ny
			if nx < 0 {
				ncpos.X--
				wx += world.HeatGridSize
			} else if nx >= world.HeatGridSize {
				ncpos.X++
				wx -= world.HeatGridSize
			}
			if ny < 0 {
				ncpos.Y--
				wy += world.HeatGridSize
			} else if ny >= world.HeatGridSize {
				ncpos.Y++
				wy -= world.HeatGridSize
			}
			nch, ok := canvas.ChunkAt(ncpos)
			if !ok {
				continue
			}
			heat = nch.HeatGrid[wy*world.HeatGridSize+wx]
		}
		sum += uint32(heat)
		count++
	}
	return sum, count
}

// PropagateHeat diffuses heat across every active heat cell in the given
// chunks. Processing is sequential per chunk (not phase-parallel): unlike a
// pixel swap, a heat cell reads its neighbor chunk's grid while writing its
// own, and two chunks can be each other's neighbor in the same pass.
func PropagateHeat(canvas *scheduler.Canvas, chunkPositions []coords.ChunkPos, registry *material.Registry, cfg HeatConfig) {
	var scratch [world.HeatGridSize * world.HeatGridSize]uint8

	for _, cpos := range chunkPositions {
		ch, ok := canvas.ChunkAt(cpos)
		if !ok {
			continue
		}

		active := activeHeatCells(ch)
		if len(active) == 0 {
			continue
		}

		for _, cell := range active {
			hx, hy := cell[0], cell[1]
			source, solidCount := accumulateCellHeatSources(ch, registry, hx, hy, cfg.BurningHeat)
			selfHeat := uint32(ch.HeatGrid[hy*world.HeatGridSize+hx])
			neighborSum, neighborCount := sampleHeatNeighbors(canvas, cpos, ch, hx, hy)

			var neighborAvg uint32
			if neighborCount > 0 {
				neighborAvg = neighborSum / neighborCount
			}

			effectiveCooling := cfg.CoolingFactor
			if solidCount == 0 {
				effectiveCooling = pow10(cfg.CoolingFactor)
			}

			diffused := uint32(float32(selfHeat+neighborAvg) / 2.0 * effectiveCooling)
			newTemp := source
			if diffused > newTemp {
				newTemp = diffused
			}
			if newTemp > 255 {
				newTemp = 255
			}
			scratch[hy*world.HeatGridSize+hx] = uint8(newTemp)
		}

		for _, cell := range active {
			hx, hy := cell[0], cell[1]
			idx := hy*world.HeatGridSize + hx
			ch.HeatGrid[idx] = scratch[idx]
			ch.HeatActive[idx] = scratch[idx] > 0
			scratch[idx] = 0
		}
	}
}

func pow10(x float32) float32 {
	v := float64(x)
	r := 1.0
	for i := 0; i < 10; i++ {
		r *= v
	}
	return float32(r)
}

func activeHeatCells(ch *world.Chunk) [][2]int {
	var out [][2]int
	for i, active := range ch.HeatActive {
		if active {
			out = append(out, [2]int{i % world.HeatGridSize, i / world.HeatGridSize})
		}
	}
	return out
}

func ignitePixels(ch *world.Chunk, registry *material.Registry, hx, hy int, heat uint8) bool {
	baseX, baseY := hx*heatCellSize, hy*heatCellSize
	ignited := false
	for dy := 0; dy < heatCellSize; dy++ {
		for dx := 0; dx < heatCellSize; dx++ {
			l := coords.LocalPos{X: uint16(baseX + dx), Y: uint16(baseY + dy)}
			p := ch.Get(l)
			if p.IsVoid() {
				continue
			}
			mat := registry.Get(p.Material)
			if mat.IgnitionThreshold == 0 || heat < mat.IgnitionThreshold || p.Has(pixel.FlagBurning) {
				continue
			}
			p = p.Set(pixel.FlagBurning)
			ch.Set(l, p)
			ignited = true
		}
	}
	return ignited
}

// IgniteFromHeat walks the heat grid of every given chunk and ignites
// flammable pixels whose cell heat has reached their material's ignition
// threshold.
func IgniteFromHeat(canvas *scheduler.Canvas, chunkPositions []coords.ChunkPos, registry *material.Registry) {
	for _, cpos := range chunkPositions {
		ch, ok := canvas.ChunkAt(cpos)
		if !ok {
			continue
		}
		for i, heat := range ch.HeatGrid {
			if heat == 0 {
				continue
			}
			hx, hy := i%world.HeatGridSize, i/world.HeatGridSize
			if ignitePixels(ch, registry, hx, hy, heat) {
				ch.HeatActive[i] = true
			}
		}
	}
}
