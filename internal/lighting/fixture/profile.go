package fixture

import (
	lightcolor "github.com/chromaworks/lumen-engine/internal/lighting/color"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
)

// Intent pairs an intent key with the value/layer/blend an apply_* function
// wants written for it.
type Intent struct {
	Key    state.Key
	Intent state.ChannelIntent
}

// DefaultMaxStrobeFrequency is used when a descriptor doesn't specify one.
const DefaultMaxStrobeFrequency = 20.0

func (r Registered) maxStrobeFrequency() float64 {
	if r.Descriptor.MaxStrobeFrequency > 0 {
		return r.Descriptor.MaxStrobeFrequency
	}
	return DefaultMaxStrobeFrequency
}

// ApplyColor populates red/green/blue (and white, iff c carries one and the
// fixture wires that role) for the given color.
func ApplyColor(r Registered, c lightcolor.Color, layer state.Layer, blend state.BlendMode) []Intent {
	var out []Intent
	push := func(role state.Role, v byte) {
		if r.Descriptor.HasRole(role) {
			out = append(out, Intent{
				Key:    state.VisibleKey(role),
				Intent: state.ChannelIntent{Value: float64(v) / 255, Layer: layer, Blend: blend},
			})
		}
	}
	push(state.RoleRed, c.R)
	push(state.RoleGreen, c.G)
	push(state.RoleBlue, c.B)
	if c.W != nil {
		push(state.RoleWhite, *c.W)
	}
	return out
}

// ApplyBrightness dispatches an abstract brightness level according to the
// fixture's brightness strategy (§4.2).
func ApplyBrightness(r Registered, level float64, layer state.Layer, blend state.BlendMode) []Intent {
	return applyLevel(r, level, layer, blend, state.DimmerMultiplierKey)
}

// ApplyChase dispatches a chase-activity level using the same strategy
// rules as ApplyBrightness.
func ApplyChase(r Registered, level float64, layer state.Layer, blend state.BlendMode) []Intent {
	return applyLevel(r, level, layer, blend, state.DimmerMultiplierKey)
}

// ApplyPulse dispatches a pulse level using the same strategy rules as
// ApplyBrightness, but through the dedicated pulse multiplier marker so it
// composes independently of a concurrent dimmer effect.
func ApplyPulse(r Registered, level float64, layer state.Layer, blend state.BlendMode) []Intent {
	return applyLevel(r, level, layer, blend, state.PulseMultiplierKey)
}

func applyLevel(r Registered, level float64, layer state.Layer, blend state.BlendMode, marker state.Key) []Intent {
	mk := func(v float64, b state.BlendMode) state.ChannelIntent {
		return state.ChannelIntent{Value: v, Layer: layer, Blend: b}
	}
	switch r.Profile.Brightness {
	case DedicatedDimmer:
		if blend == state.Replace {
			return []Intent{{Key: state.VisibleKey(state.RoleDimmer), Intent: mk(level, blend)}}
		}
		return []Intent{{Key: marker, Intent: mk(level, state.Multiply)}}
	case RgbMultiplication:
		if blend == state.Replace {
			out := []Intent{
				{Key: marker, Intent: mk(level, state.Multiply)},
			}
			for _, role := range [...]state.Role{state.RoleRed, state.RoleGreen, state.RoleBlue} {
				if r.Descriptor.HasRole(role) {
					out = append(out, Intent{Key: state.VisibleKey(role), Intent: mk(level, blend)})
				}
			}
			return out
		}
		return []Intent{{Key: marker, Intent: mk(level, state.Multiply)}}
	default:
		return nil
	}
}

// ApplyStrobe dispatches a strobe value according to the fixture's strobe
// strategy. value is already the caller's fully-computed per-frame scalar
// (normalized hardware frequency, or software on/off level), with
// crossfade already folded in. isOffHalf indicates the software-strobe
// generator is currently in its OFF half-cycle, which forces a Replace
// blend so the zero value overrides lower layers.
func ApplyStrobe(r Registered, value float64, layer state.Layer, blend state.BlendMode, isOffHalf bool) []Intent {
	switch r.Profile.Strobe {
	case DedicatedChannel:
		return []Intent{{
			Key:    state.VisibleKey(state.RoleStrobe),
			Intent: state.ChannelIntent{Value: value, Layer: layer, Blend: blend},
		}}
	case SoftwareOnOff:
		effective := blend
		if isOffHalf {
			effective = state.Replace
		}
		if r.Descriptor.HasRole(state.RoleDimmer) {
			return []Intent{{
				Key:    state.VisibleKey(state.RoleDimmer),
				Intent: state.ChannelIntent{Value: value, Layer: layer, Blend: effective},
			}}
		}
		var out []Intent
		for _, role := range [...]state.Role{state.RoleRed, state.RoleGreen, state.RoleBlue} {
			if r.Descriptor.HasRole(role) {
				out = append(out, Intent{
					Key:    state.VisibleKey(role),
					Intent: state.ChannelIntent{Value: value, Layer: layer, Blend: effective},
				})
			}
		}
		return out
	default:
		return nil
	}
}
