// Package state defines the per-frame intermediate types the compositor
// blends: channel roles, layers, blend modes, and the channel/fixture state
// merge rules.
package state

// Role names a DMX-addressable capability within a fixture's channel map,
// e.g. "red", "dimmer", "pan". Roles are matched against a fixture
// descriptor's channel map by exact string.
type Role string

const (
	RoleRed       Role = "red"
	RoleGreen     Role = "green"
	RoleBlue      Role = "blue"
	RoleWhite     Role = "white"
	RoleDimmer    Role = "dimmer"
	RoleStrobe    Role = "strobe"
	RolePan       Role = "pan"
	RoleTilt      Role = "tilt"
	RoleZoom      Role = "zoom"
	RoleFocus     Role = "focus"
	RoleGobo      Role = "gobo"
	RoleColorTemp Role = "color_temp"
	RoleEffects   Role = "effects"
)

// Layer is one of three ordered compositing planes. Lower layers render
// first; higher layers compose atop them.
type Layer int

const (
	Background Layer = iota
	Midground
	Foreground
)

// Layers lists the compositing order, lowest first.
var Layers = [...]Layer{Background, Midground, Foreground}

func (l Layer) String() string {
	switch l {
	case Background:
		return "background"
	case Midground:
		return "midground"
	case Foreground:
		return "foreground"
	default:
		return "unknown"
	}
}

// BlendMode is the combination function applied when merging a new intent
// into an existing one for the same role.
type BlendMode int

const (
	Replace BlendMode = iota
	Multiply
	Add
	Overlay
	Screen
)

func (b BlendMode) String() string {
	switch b {
	case Replace:
		return "replace"
	case Multiply:
		return "multiply"
	case Add:
		return "add"
	case Overlay:
		return "overlay"
	case Screen:
		return "screen"
	default:
		return "unknown"
	}
}

// MarkerKind distinguishes a visible channel role from one of the two
// internal sentinel markers. Encoding this as a tagged field rather than a
// leading-underscore role string keeps the marker out of band from real
// roles by construction instead of by naming convention.
type MarkerKind int

const (
	Visible MarkerKind = iota
	DimmerMultiplier
	PulseMultiplier
)

// Key identifies a slot within a FixtureState: either a visible role or one
// of the two internal multiplier markers. Only Visible keys carry a Role.
type Key struct {
	Kind MarkerKind
	Role Role
}

// VisibleKey wraps a channel role as an intent key.
func VisibleKey(r Role) Key { return Key{Kind: Visible, Role: r} }

// DimmerMultiplierKey is the sentinel key for a pending brightness
// multiplier that must be folded into visible roles at emission time.
var DimmerMultiplierKey = Key{Kind: DimmerMultiplier}

// PulseMultiplierKey is the sentinel key for a pending pulse multiplier.
var PulseMultiplierKey = Key{Kind: PulseMultiplier}

// IsMarker reports whether k is an internal sentinel, never emitted to DMX.
func (k Key) IsMarker() bool { return k.Kind != Visible }

// ChannelIntent is one effect's proposed contribution to a single role on a
// single fixture for the current frame.
type ChannelIntent struct {
	Value float64
	Layer Layer
	Blend BlendMode
}

// FixtureState is the accumulated, blended intent set for one fixture
// within a single frame, keyed by role/marker.
type FixtureState map[Key]ChannelIntent

// Merge combines a new intent n into the existing FixtureState at key k,
// following the per-blend-mode combination rules. The reported Layer/Blend
// of the merged entry always reflect the higher layer (n, since merges
// happen in ascending layer order during composition; see compositor).
func (fs FixtureState) Merge(k Key, n ChannelIntent) {
	e, ok := fs[k]
	if !ok {
		fs[k] = n
		return
	}
	v := combine(e.Value, n.Value, n.Blend)
	fs[k] = ChannelIntent{Value: v, Layer: n.Layer, Blend: n.Blend}
}

func combine(existing, next float64, mode BlendMode) float64 {
	switch mode {
	case Replace:
		return next
	case Multiply:
		return existing * next
	case Add:
		v := existing + next
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	case Screen:
		return 1 - (1-existing)*(1-next)
	case Overlay:
		if existing < 0.5 {
			return 2 * existing * next
		}
		return 1 - 2*(1-existing)*(1-next)
	default:
		return next
	}
}

// CollapseMultipliers folds the DimmerMultiplierKey and PulseMultiplierKey
// markers into every present visible role by multiplication, then drops
// the markers. Called once per fixture after all layers have been
// processed (§4.5 step 4).
func (fs FixtureState) CollapseMultipliers() {
	dimmer, hasDimmer := fs[DimmerMultiplierKey]
	pulse, hasPulse := fs[PulseMultiplierKey]
	if !hasDimmer && !hasPulse {
		return
	}
	for k, v := range fs {
		if k.IsMarker() {
			continue
		}
		if hasDimmer {
			v.Value *= dimmer.Value
		}
		if hasPulse {
			v.Value *= pulse.Value
		}
		fs[k] = v
	}
	delete(fs, DimmerMultiplierKey)
	delete(fs, PulseMultiplierKey)
}
