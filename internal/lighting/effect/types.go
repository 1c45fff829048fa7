// Package effect defines effect parameter types, the runtime effect
// instance, its lifecycle, and the pure per-kind generator functions that
// turn (parameters, elapsed, cue time) into per-fixture channel intents.
package effect

import (
	"time"

	lightcolor "github.com/chromaworks/lumen-engine/internal/lighting/color"
	"github.com/chromaworks/lumen-engine/internal/lighting/curve"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/chromaworks/lumen-engine/internal/lighting/tempo"
)

// Type names one of the seven effect kinds.
type Type string

const (
	TypeStatic     Type = "static"
	TypeDimmer     Type = "dimmer"
	TypeColorCycle Type = "color_cycle"
	TypeStrobe     Type = "strobe"
	TypeChase      Type = "chase"
	TypeRainbow    Type = "rainbow"
	TypePulse      Type = "pulse"
)

// CycleDirection controls traversal order for ColorCycle.
type CycleDirection string

const (
	Forward  CycleDirection = "forward"
	Backward CycleDirection = "backward"
	PingPong CycleDirection = "ping_pong"
)

// ChasePattern selects the position sequence for Chase.
type ChasePattern string

const (
	PatternLinear ChasePattern = "linear"
	PatternSnake  ChasePattern = "snake"
	PatternRandom ChasePattern = "random"
)

// ChaseDirection controls whether the chase position sequence runs in its
// natural order or reversed (e.g. right-to-left, bottom-to-top).
type ChaseDirection string

const (
	ChaseForward ChaseDirection = "forward"
	ChaseReverse ChaseDirection = "reverse"
)

// Transition selects whether a cycling/chasing effect snaps between
// discrete states or fades continuously between them.
type Transition string

const (
	Snap Transition = "snap"
	Fade Transition = "fade"
)

// Params is implemented by every effect kind's parameter struct.
type Params interface {
	Kind() Type
}

// StaticParams holds a fixed role -> value map, each in [0,1].
type StaticParams struct {
	Values map[state.Role]float64
}

func (StaticParams) Kind() Type { return TypeStatic }

// DimmerParams fades a brightness level from start to end over duration
// along curve. Dimmer is the one permanent effect type (§4.3.2).
type DimmerParams struct {
	StartLevel float64
	EndLevel   float64
	Duration   time.Duration
	Curve      curve.Curve
}

func (DimmerParams) Kind() Type { return TypeDimmer }

// ColorCycleParams cycles through colors at speed cycles/sec.
type ColorCycleParams struct {
	Colors     []lightcolor.Color
	Speed      tempo.Value
	Direction  CycleDirection
	Transition Transition
}

func (ColorCycleParams) Kind() Type { return TypeColorCycle }

// StrobeParams drives a strobe at frequency Hz. Duration is carried with
// the parameters but is not read by the generator or the engine; how long
// the strobe runs is set by the instance's envelope alone.
type StrobeParams struct {
	Frequency tempo.Value
	Duration  *time.Duration
}

func (StrobeParams) Kind() Type { return TypeStrobe }

// ChaseParams animates activity across the target fixture list in order.
type ChaseParams struct {
	Pattern    ChasePattern
	Speed      tempo.Value
	Direction  ChaseDirection
	Transition Transition
}

func (ChaseParams) Kind() Type { return TypeChase }

// RainbowParams sweeps hue across the full wheel at speed cycles/sec.
type RainbowParams struct {
	Speed      tempo.Value
	Saturation float64
	Brightness float64
}

func (RainbowParams) Kind() Type { return TypeRainbow }

// PulseParams oscillates a brightness-like level sinusoidally.
type PulseParams struct {
	BaseLevel      float64
	PulseAmplitude float64
	Frequency      tempo.Value
}

func (PulseParams) Kind() Type { return TypePulse }

// Envelope is the (up, hold, down) crossfade triple. Down is a pointer
// because "no down phase configured" (nil) and "an explicit zero-length
// down phase" are different things: the former makes the effect
// indefinite (it never naturally terminates via its envelope), the
// latter is a real, instantaneous release.
type Envelope struct {
	Up   time.Duration
	Hold time.Duration
	Down *time.Duration
}

// Indefinite reports whether the envelope has no terminating down phase,
// i.e. the effect runs until explicitly released.
func (e Envelope) Indefinite() bool { return e.Down == nil }

// NaturalEnd returns the envelope's total duration and true, or
// (0, false) if the envelope is indefinite and therefore has no natural
// end.
func (e Envelope) NaturalEnd() (time.Duration, bool) {
	if e.Down == nil {
		return 0, false
	}
	return e.Up + e.Hold + *e.Down, true
}

// WithDown returns a copy of e with its down phase set to d, turning an
// indefinite envelope into one with a natural end. Used when an envelope
// is rebuilt from a stored or requested down duration.
func (e Envelope) WithDown(d time.Duration) Envelope {
	e.Down = &d
	return e
}

// LifecycleState is one of Pending, Active, Releasing, Ended.
type LifecycleState int

const (
	Pending LifecycleState = iota
	Active
	Releasing
	Ended
)

func (s LifecycleState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Releasing:
		return "releasing"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Instance binds an effect definition to runtime scheduling metadata. The
// engine is the sole owner and mutator of StartTime and State once an
// instance has been accepted.
type Instance struct {
	ID       string
	Params   Params
	Targets  []string
	Layer    state.Layer
	Blend    state.BlendMode
	Priority int
	Envelope Envelope
	CueTime  time.Duration
	Enabled  bool

	StartTime time.Duration
	State     LifecycleState

	// IndefiniteAtAcceptance records whether this instance's envelope had
	// no down phase at the moment it was accepted by start_effect. Channel
	// locking only applies to effects that qualified at acceptance, even
	// if a later release_layer_with_time call gives them a down phase.
	IndefiniteAtAcceptance bool

	// ReleasedExplicitly is set by release_layer/release_layer_with_time.
	// It overrides IsPermanent for termination purposes: an explicit
	// release can still end a permanent (Dimmer) effect.
	ReleasedExplicitly bool
}

// IsPermanent reports whether this instance's effect type never
// terminates on its own (currently only Dimmer).
func (inst *Instance) IsPermanent() bool {
	return inst.Params.Kind() == TypeDimmer
}

// Crossfade computes the envelope multiplier at elapsed effect-local time,
// per §4.6, along with whether the effect's envelope has fully elapsed. An
// indefinite envelope (no down phase configured) holds at 1 forever once
// past its up/hold phases.
func Crossfade(env Envelope, elapsed time.Duration) (xf float64, ended bool) {
	up, hold := env.Up, env.Hold
	switch {
	case elapsed < up:
		return float64(elapsed) / float64(up), false
	case elapsed < up+hold:
		return 1, false
	}

	total, hasEnd := env.NaturalEnd()
	if !hasEnd {
		return 1, false
	}
	down := *env.Down
	switch {
	case elapsed < total:
		if down == 0 {
			return 1, false
		}
		remaining := total - elapsed
		return float64(remaining) / float64(down), false
	default:
		return 0, true
	}
}
