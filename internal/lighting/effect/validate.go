package effect

import (
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
)

// Validate checks an instance against the fixture registry and its
// type-specific parameter constraints (§4.6). It does not perform conflict
// resolution; callers run that separately before insertion.
func Validate(reg *fixture.Registry, inst *Instance) error {
	if inst.Envelope.Up < 0 || inst.Envelope.Hold < 0 || (inst.Envelope.Down != nil && *inst.Envelope.Down < 0) {
		return timingErrf("envelope durations must be non-negative")
	}

	targets := make([]fixture.Registered, 0, len(inst.Targets))
	for _, name := range inst.Targets {
		r, ok := reg.Get(name)
		if !ok {
			return fixtureErrf("target fixture %q is not registered", name)
		}
		targets = append(targets, r)
	}

	switch p := inst.Params.(type) {
	case StaticParams:
		for role, v := range p.Values {
			if v < 0 || v > 1 {
				return parameterErrf("static value for role %q out of range [0,1]: %v", role, v)
			}
		}
	case DimmerParams:
		if p.Duration < 0 {
			return timingErrf("dimmer duration must be non-negative")
		}
	case ColorCycleParams:
		for _, r := range targets {
			if !r.Capabilities.Has(fixture.CapRGB) {
				return parameterErrf("fixture %q lacks RGB capability required by ColorCycle", r.Descriptor.Name)
			}
		}
	case StrobeParams:
		if p.Frequency.ResolveHz(nil, 0) < 0 {
			return parameterErrf("strobe frequency must be >= 0")
		}
		for _, r := range targets {
			if !(r.Capabilities.Has(fixture.CapStrobing) || r.Capabilities.Has(fixture.CapDimming) || r.Capabilities.Has(fixture.CapRGB)) {
				return parameterErrf("fixture %q has no strobe, dimmer, or RGB capability required by Strobe", r.Descriptor.Name)
			}
		}
	case ChaseParams:
		for _, r := range targets {
			if !(r.Capabilities.Has(fixture.CapRGB) || r.Capabilities.Has(fixture.CapDimming)) {
				return parameterErrf("fixture %q lacks RGB or DIMMING capability required by Chase", r.Descriptor.Name)
			}
		}
	case RainbowParams:
		for _, r := range targets {
			if !r.Capabilities.Has(fixture.CapRGB) {
				return parameterErrf("fixture %q lacks RGB capability required by Rainbow", r.Descriptor.Name)
			}
		}
	case PulseParams:
		if p.Frequency.ResolveHz(nil, 0) <= 0 {
			return parameterErrf("pulse frequency must be > 0")
		}
	}
	return nil
}

// blendCompatible reports whether two blend modes may coexist on the same
// role without conflicting. Replace is incompatible with every mode,
// including another Replace; all non-Replace pairs are compatible.
func blendCompatible(a, b state.BlendMode) bool {
	return a != state.Replace && b != state.Replace
}

// conflictingTypes is the effect-type conflict list from §4.6, keyed
// symmetrically.
var conflictingTypes = map[[2]Type]bool{
	{TypeStatic, TypeStatic}:         true,
	{TypeStatic, TypeColorCycle}:     true,
	{TypeColorCycle, TypeStatic}:     true,
	{TypeColorCycle, TypeColorCycle}: true,
	{TypeStrobe, TypeStrobe}:         true,
	{TypeChase, TypeChase}:           true,
	{TypeRainbow, TypeStatic}:        true,
	{TypeStatic, TypeRainbow}:        true,
	{TypeRainbow, TypeColorCycle}:    true,
	{TypeColorCycle, TypeRainbow}:    true,
	{TypeRainbow, TypeRainbow}:       true,
}

func typesConflict(a, b Type) bool {
	return conflictingTypes[[2]Type{a, b}]
}

func shareTarget(a, b *Instance) bool {
	set := make(map[string]struct{}, len(a.Targets))
	for _, t := range a.Targets {
		set[t] = struct{}{}
	}
	for _, t := range b.Targets {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// ShouldConflict implements the §4.6 conflict-resolution decision for
// whether existing instance e must be stopped to make room for new
// instance n.
func ShouldConflict(e, n *Instance) bool {
	if !e.Enabled || !n.Enabled {
		return false
	}
	if e.Layer != n.Layer {
		return false
	}
	if !shareTarget(e, n) {
		return false
	}
	if e.Priority < n.Priority {
		return true
	}
	if !blendCompatible(e.Blend, n.Blend) && typesConflict(e.Params.Kind(), n.Params.Kind()) {
		return true
	}
	return false
}
