// Package material defines the simulation material table: physics behavior,
// thermal/burn response, and the 8-step display palette each material
// carries. The registry loads from an optional TOML config and otherwise
// falls back to the compiled-in builtin table.
package material

import "github.com/api-haus/pixelworld/internal/pixel"

// PhysicsState determines how a pixel of this material moves during the
// physics swap pass.
type PhysicsState int

const (
	Solid PhysicsState = iota
	Powder
	Liquid
	Gas
)

func (s PhysicsState) String() string {
	switch s {
	case Solid:
		return "solid"
	case Powder:
		return "powder"
	case Liquid:
		return "liquid"
	case Gas:
		return "gas"
	default:
		return "unknown"
	}
}

// Effect describes what happens to a pixel under an applied effect such as
// burning or a blast.
type Effect int

const (
	// EffectDestroy replaces the pixel with void.
	EffectDestroy Effect = iota
	// EffectTransform replaces the pixel's material, keeping position/flags.
	EffectTransform
	// EffectResist leaves the pixel unchanged.
	EffectResist
)

// BurnEffect is a material's response to sustained burning: which effect
// applies, and the per-tick probability of it firing.
type BurnEffect struct {
	Effect   Effect
	Target   pixel.MaterialID // only meaningful when Effect == EffectTransform
	Chance   float32
	HasValue bool // false means "does not burn"
}

// Effects groups a material's effect responses.
type Effects struct {
	OnBurn          BurnEffect
	BlastResistance float32
}

// RGBA is a display color; the same 4-channel layout the compression and
// render-handoff code expects.
type RGBA struct {
	R, G, B, A uint8
}

// Material is a single entry in the registry.
type Material struct {
	Name    string
	Palette [8]RGBA // surface (index 0) to deep (index 7)
	State   PhysicsState

	// Density governs liquid displacement: a denser liquid sinks through a
	// less dense one.
	Density uint8
	// Dispersion is how many cells a liquid can spread horizontally per tick.
	Dispersion uint8
	// AirResistance is a 1/N chance to skip falling this tick (0 disables).
	AirResistance uint8
	// AirDrift is a 1/N chance to drift sideways while falling (0 disables).
	AirDrift uint8
	// IgnitionThreshold is the heat level at which this material catches fire
	// (0 means never ignites from heat).
	IgnitionThreshold uint8
	// BaseTemperature is the heat this material radiates into the heat layer.
	BaseTemperature uint8

	Effects Effects
}

// Built-in material ids, in registry order.
const (
	Void  = pixel.Void
	Soil  pixel.MaterialID = 1
	Stone pixel.MaterialID = 2
	Sand  pixel.MaterialID = 3
	Water pixel.MaterialID = 4
	Wood  pixel.MaterialID = 5
	Ash   pixel.MaterialID = 6
)

func rgb(r, g, b uint8) RGBA { return RGBA{R: r, G: g, B: b, A: 255} }

// Builtin returns the compiled-in material table. Index i holds the
// material with id MaterialID(i).
func Builtin() []Material {
	return []Material{
		{
			Name:    "Void",
			Palette: [8]RGBA{{135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}, {135, 206, 235, 0}},
			State:   Gas,
		},
		{
			Name: "Soil",
			Palette: [8]RGBA{
				rgb(139, 90, 43), rgb(130, 82, 38), rgb(121, 74, 33), rgb(112, 66, 28),
				rgb(103, 58, 23), rgb(94, 50, 18), rgb(85, 42, 13), rgb(76, 34, 8),
			},
			State:         Powder,
			Density:       150,
			AirResistance: 12,
			AirDrift:      6,
			Effects:       Effects{BlastResistance: 0.5},
		},
		{
			Name: "Stone",
			Palette: [8]RGBA{
				rgb(128, 128, 128), rgb(118, 118, 118), rgb(108, 108, 108), rgb(98, 98, 98),
				rgb(88, 88, 88), rgb(78, 78, 78), rgb(68, 68, 68), rgb(58, 58, 58),
			},
			State:   Solid,
			Density: 200,
			Effects: Effects{BlastResistance: 5.0},
		},
		{
			Name: "Sand",
			Palette: [8]RGBA{
				rgb(237, 201, 175), rgb(225, 191, 146), rgb(218, 180, 130), rgb(210, 170, 115),
				rgb(200, 160, 100), rgb(190, 150, 85), rgb(180, 140, 70), rgb(170, 130, 60),
			},
			State:         Powder,
			Density:       160,
			AirResistance: 8,
			AirDrift:      4,
			Effects:       Effects{BlastResistance: 0.3},
		},
		{
			Name: "Water",
			Palette: [8]RGBA{
				{64, 164, 223, 180}, {55, 145, 205, 190}, {46, 126, 187, 200}, {37, 107, 169, 210},
				{28, 88, 151, 220}, {19, 69, 133, 230}, {10, 50, 115, 240}, {5, 35, 100, 250},
			},
			State:         Liquid,
			Density:       100,
			Dispersion:    5,
			AirResistance: 16,
			AirDrift:      12,
			Effects:       Effects{BlastResistance: 0.1},
		},
		{
			Name: "Wood",
			Palette: [8]RGBA{
				rgb(205, 170, 125), rgb(185, 145, 100), rgb(165, 120, 80), rgb(145, 100, 65),
				rgb(130, 85, 50), rgb(110, 70, 40), rgb(90, 55, 30), rgb(70, 45, 25),
			},
			State:             Solid,
			Density:           80,
			IgnitionThreshold: 40,
			Effects: Effects{
				OnBurn:          BurnEffect{Effect: EffectTransform, Target: Ash, Chance: 0.005, HasValue: true},
				BlastResistance: 1.0,
			},
		},
		{
			Name: "Ash",
			Palette: [8]RGBA{
				rgb(180, 175, 170), rgb(165, 160, 155), rgb(150, 145, 140), rgb(140, 135, 130),
				rgb(130, 125, 120), rgb(120, 115, 110), rgb(110, 105, 100), rgb(100, 95, 90),
			},
			State:         Powder,
			Density:       60,
			AirResistance: 4,
			AirDrift:      3,
			Effects:       Effects{BlastResistance: 0.1},
		},
	}
}
