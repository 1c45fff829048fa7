// Package fixture models fixture descriptors, their derived capabilities,
// and the per-fixture emission profile that translates abstract
// brightness/color intents into concrete channel writes.
package fixture

import (
	"fmt"
	"log"
	"strings"

	"github.com/chromaworks/lumen-engine/internal/lighting/state"
)

// Descriptor is an immutable, shared-by-name description of a single
// fixture's DMX wiring.
type Descriptor struct {
	Name                string
	Universe            uint16
	BaseAddress         uint16 // 1-based
	Channels            map[state.Role]uint16 // role -> 1-based offset within the fixture's address block
	FixtureType         string
	MaxStrobeFrequency  float64 // Hz; 0 means "use the default of 20"
}

// HasRole reports whether the descriptor wires the given role.
func (d Descriptor) HasRole(r state.Role) bool {
	_, ok := d.Channels[r]
	return ok
}

// Address returns the absolute 1-based DMX channel for a wired role, and
// false if the role is not present.
func (d Descriptor) Address(r state.Role) (uint16, bool) {
	offset, ok := d.Channels[r]
	if !ok {
		return 0, false
	}
	return d.BaseAddress + offset, true
}

// Capabilities is a bitset over the derived boolean properties of a
// fixture, computed purely from which channel roles are wired.
type Capabilities uint16

const (
	CapRGB Capabilities = 1 << iota
	CapWhite
	CapDimming
	CapStrobing
	CapPan
	CapTilt
	CapZoom
	CapFocus
	CapGobo
	CapColorTemp
	CapEffects
)

// Has reports whether all bits in mask are set.
func (c Capabilities) Has(mask Capabilities) bool {
	return c&mask == mask
}

// DeriveCapabilities computes the capability bitset for a descriptor: a
// pure function of which channel roles are present.
func DeriveCapabilities(d Descriptor) Capabilities {
	var c Capabilities
	if d.HasRole(state.RoleRed) && d.HasRole(state.RoleGreen) && d.HasRole(state.RoleBlue) {
		c |= CapRGB
	}
	if d.HasRole(state.RoleWhite) {
		c |= CapWhite
	}
	if d.HasRole(state.RoleDimmer) {
		c |= CapDimming
	}
	if d.HasRole(state.RoleStrobe) {
		c |= CapStrobing
	}
	if d.HasRole(state.RolePan) {
		c |= CapPan
	}
	if d.HasRole(state.RoleTilt) {
		c |= CapTilt
	}
	if d.HasRole(state.RoleZoom) {
		c |= CapZoom
	}
	if d.HasRole(state.RoleFocus) {
		c |= CapFocus
	}
	if d.HasRole(state.RoleGobo) {
		c |= CapGobo
	}
	if d.HasRole(state.RoleColorTemp) {
		c |= CapColorTemp
	}
	if d.HasRole(state.RoleEffects) {
		c |= CapEffects
	}
	return c
}

// BrightnessStrategy selects how an abstract brightness level is written.
type BrightnessStrategy int

const (
	DedicatedDimmer BrightnessStrategy = iota
	RgbMultiplication
)

// ColorStrategy selects how an abstract color is written.
type ColorStrategy int

const (
	ColorRgb ColorStrategy = iota
	ColorRgbw
)

// StrobeStrategy selects how an abstract strobe frequency is written.
type StrobeStrategy int

const (
	DedicatedChannel StrobeStrategy = iota
	SoftwareOnOff
)

// Profile is the per-fixture strategy set derived from its capabilities.
type Profile struct {
	Brightness BrightnessStrategy
	Color      ColorStrategy
	Strobe     StrobeStrategy
}

// ProfileFor derives the emission profile for a fixture from its
// capability bitset.
func ProfileFor(caps Capabilities) Profile {
	p := Profile{}
	if caps.Has(CapDimming) {
		p.Brightness = DedicatedDimmer
	} else {
		p.Brightness = RgbMultiplication
	}
	if caps.Has(CapWhite) {
		p.Color = ColorRgbw
	} else {
		p.Color = ColorRgb
	}
	if caps.Has(CapStrobing) {
		p.Strobe = DedicatedChannel
	} else {
		p.Strobe = SoftwareOnOff
	}
	return p
}

// Registered is a descriptor together with its derived capabilities and
// profile, as stored by the Registry.
type Registered struct {
	Descriptor   Descriptor
	Capabilities Capabilities
	Profile      Profile
}

// Registry holds the set of known fixtures, keyed by name.
type Registry struct {
	fixtures map[string]Registered
}

// NewRegistry constructs an empty fixture registry.
func NewRegistry() *Registry {
	return &Registry{fixtures: make(map[string]Registered)}
}

// Register inserts or overwrites a fixture descriptor by name. Capability
// or fixture-type mismatches are logged as warnings; the fixture is always
// registered.
func (r *Registry) Register(d Descriptor) {
	caps := DeriveCapabilities(d)
	for _, msg := range mismatchWarnings(d, caps) {
		log.Printf("fixture registry: %s: %s", d.Name, msg)
	}
	r.fixtures[d.Name] = Registered{
		Descriptor:   d,
		Capabilities: caps,
		Profile:      ProfileFor(caps),
	}
}

// Get returns the registered fixture by name.
func (r *Registry) Get(name string) (Registered, bool) {
	reg, ok := r.fixtures[name]
	return reg, ok
}

// All returns every registered fixture, in no particular order.
func (r *Registry) All() []Registered {
	out := make([]Registered, 0, len(r.fixtures))
	for _, reg := range r.fixtures {
		out = append(out, reg)
	}
	return out
}

// mismatchWarnings implements the heuristic fixture-type/capability
// mismatch check: a substring match on the fixture-type tag against the
// roles actually wired.
func mismatchWarnings(d Descriptor, caps Capabilities) []string {
	var warnings []string
	t := d.FixtureType
	if strings.Contains(t, "RGB") && !caps.Has(CapRGB) {
		warnings = append(warnings, fmt.Sprintf("fixture type %q implies RGB but red/green/blue channels are not all wired", t))
	}
	if strings.Contains(t, "MovingHead") && !(caps.Has(CapPan) && caps.Has(CapTilt)) {
		warnings = append(warnings, fmt.Sprintf("fixture type %q implies pan/tilt but they are not both wired", t))
	}
	if strings.Contains(t, "Strobe") && !caps.Has(CapStrobing) {
		warnings = append(warnings, fmt.Sprintf("fixture type %q implies a dedicated strobe channel but none is wired", t))
	}
	return warnings
}
