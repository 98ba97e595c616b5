package material

import (
	"fmt"
	"os"
	"sync"

	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/pelletier/go-toml"
)

// Registry is a read-only-during-ticks lookup table from material id to
// Material. It is built once (builtin or from a config file) and versioned
// so callers can detect a reload.
type Registry struct {
	mu      sync.RWMutex
	entries []Material
	version uint64
}

// NewRegistry builds a registry from the compiled-in builtin table.
func NewRegistry() *Registry {
	return &Registry{entries: Builtin(), version: 1}
}

// Get returns the material for id. Out-of-range ids return the Void entry,
// matching the spec's "nothing panics on external input" error policy.
func (r *Registry) Get(id pixel.MaterialID) Material {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.entries) {
		return r.entries[Void]
	}
	return r.entries[id]
}

// Len returns the number of registered materials.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Version returns a counter that increments every time the registry is
// replaced via LoadTOMLFile, so callers can invalidate caches keyed on
// material properties (e.g. cached collision solidity).
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// configDoc is the TOML document shape, field-compatible with the reference
// implementation's MaterialsConfig (names instead of ids for cross-refs).
type configDoc struct {
	Materials []materialConfig `toml:"materials"`
}

type materialConfig struct {
	Name              string      `toml:"name"`
	Palette           [][4]uint8  `toml:"palette"`
	State             string      `toml:"state"`
	Density           uint8       `toml:"density"`
	Dispersion        uint8       `toml:"dispersion"`
	AirResistance     uint8       `toml:"air_resistance"`
	AirDrift          uint8       `toml:"air_drift"`
	IgnitionThreshold uint8       `toml:"ignition_threshold"`
	BaseTemperature   uint8       `toml:"base_temperature"`
	Effects           *effectsCfg `toml:"effects"`
}

type effectsCfg struct {
	OnBurn          *burnCfg `toml:"on_burn"`
	BlastResistance float32  `toml:"blast_resistance"`
}

type burnCfg struct {
	Effect    string  `toml:"effect"` // "destroy" | "transform"
	Transform string  `toml:"transform,omitempty"`
	Chance    float32 `toml:"chance"`
}

func parsePhysicsState(s string) (PhysicsState, error) {
	switch s {
	case "solid":
		return Solid, nil
	case "powder":
		return Powder, nil
	case "liquid":
		return Liquid, nil
	case "gas":
		return Gas, nil
	default:
		return 0, fmt.Errorf("material: unknown physics state %q", s)
	}
}

// DumpBuiltinTOML renders the compiled-in table as a TOML document, for
// producing a starting-point config file.
func DumpBuiltinTOML() ([]byte, error) {
	doc := configDoc{}
	builtin := Builtin()
	for _, m := range builtin {
		mc := materialConfig{
			Name:              m.Name,
			State:             m.State.String(),
			Density:           m.Density,
			Dispersion:        m.Dispersion,
			AirResistance:     m.AirResistance,
			AirDrift:          m.AirDrift,
			IgnitionThreshold: m.IgnitionThreshold,
			BaseTemperature:   m.BaseTemperature,
		}
		for _, c := range m.Palette {
			mc.Palette = append(mc.Palette, [4]uint8{c.R, c.G, c.B, c.A})
		}
		if m.Effects.OnBurn.HasValue || m.Effects.BlastResistance != 0 {
			ec := &effectsCfg{BlastResistance: m.Effects.BlastResistance}
			if m.Effects.OnBurn.HasValue {
				bc := &burnCfg{Chance: m.Effects.OnBurn.Chance}
				switch m.Effects.OnBurn.Effect {
				case EffectDestroy:
					bc.Effect = "destroy"
				case EffectTransform:
					bc.Effect = "transform"
					bc.Transform = builtin[m.Effects.OnBurn.Target].Name
				}
				ec.OnBurn = bc
			}
			mc.Effects = ec
		}
		doc.Materials = append(doc.Materials, mc)
	}
	return toml.Marshal(doc)
}

// LoadTOMLFile replaces the registry's contents with the materials described
// in the TOML file at path. Transform targets are resolved by name, so
// config authors never need to know numeric ids. On any parse or
// cross-reference error the registry is left untouched and the error is
// returned; this is a configuration error per the engine's error-handling
// policy (fail at load time, don't proceed with a half-applied registry).
func (r *Registry) LoadTOMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("material: read %s: %w", path, err)
	}
	var doc configDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("material: parse %s: %w", path, err)
	}

	nameToID := make(map[string]pixel.MaterialID, len(doc.Materials))
	for i, mc := range doc.Materials {
		nameToID[mc.Name] = pixel.MaterialID(i)
	}

	entries := make([]Material, len(doc.Materials))
	for i, mc := range doc.Materials {
		state, err := parsePhysicsState(mc.State)
		if err != nil {
			return fmt.Errorf("material: %s: %w", mc.Name, err)
		}
		m := Material{
			Name:              mc.Name,
			State:             state,
			Density:           mc.Density,
			Dispersion:        mc.Dispersion,
			AirResistance:     mc.AirResistance,
			AirDrift:          mc.AirDrift,
			IgnitionThreshold: mc.IgnitionThreshold,
			BaseTemperature:   mc.BaseTemperature,
		}
		for j, c := range mc.Palette {
			if j >= 8 {
				break
			}
			m.Palette[j] = RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
		}
		if mc.Effects != nil {
			m.Effects.BlastResistance = mc.Effects.BlastResistance
			if mc.Effects.OnBurn != nil {
				be := BurnEffect{Chance: mc.Effects.OnBurn.Chance, HasValue: true}
				switch mc.Effects.OnBurn.Effect {
				case "destroy":
					be.Effect = EffectDestroy
				case "transform":
					be.Effect = EffectTransform
					target, ok := nameToID[mc.Effects.OnBurn.Transform]
					if !ok {
						return fmt.Errorf("material: %s: unknown burn transform target %q", mc.Name, mc.Effects.OnBurn.Transform)
					}
					be.Target = target
				default:
					return fmt.Errorf("material: %s: unknown burn effect %q", mc.Name, mc.Effects.OnBurn.Effect)
				}
				m.Effects.OnBurn = be
			}
		}
		entries[i] = m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.version++
	return nil
}
