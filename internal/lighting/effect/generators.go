package effect

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	lightcolor "github.com/chromaworks/lumen-engine/internal/lighting/color"
	"github.com/chromaworks/lumen-engine/internal/lighting/curve"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/chromaworks/lumen-engine/internal/lighting/tempo"
)

// FixtureIntents maps a fixture name to the intents an effect produced for
// it this frame.
type FixtureIntents map[string][]fixture.Intent

// Generate dispatches to the per-kind pure generator function and applies
// the crossfade multiplier to the result, per §4.3.
func Generate(reg *fixture.Registry, inst *Instance, elapsed time.Duration, absolute time.Duration, snap tempo.Snapshot) FixtureIntents {
	xf, _ := Crossfade(inst.Envelope, elapsed)

	switch p := inst.Params.(type) {
	case StaticParams:
		return generateStatic(reg, inst, p, xf)
	case DimmerParams:
		return generateDimmer(reg, inst, p, elapsed, xf)
	case ColorCycleParams:
		return generateColorCycle(reg, inst, p, elapsed, absolute, snap, xf)
	case StrobeParams:
		return generateStrobe(reg, inst, p, elapsed, absolute, snap, xf)
	case ChaseParams:
		return generateChase(reg, inst, p, elapsed, absolute, snap, xf)
	case RainbowParams:
		return generateRainbow(reg, inst, p, elapsed, absolute, snap, xf)
	case PulseParams:
		return generatePulse(reg, inst, p, elapsed, absolute, snap, xf)
	default:
		return nil
	}
}

func registeredTargets(reg *fixture.Registry, inst *Instance) []fixture.Registered {
	out := make([]fixture.Registered, 0, len(inst.Targets))
	for _, name := range inst.Targets {
		if r, ok := reg.Get(name); ok {
			out = append(out, r)
		}
	}
	return out
}

func generateStatic(reg *fixture.Registry, inst *Instance, p StaticParams, xf float64) FixtureIntents {
	out := FixtureIntents{}
	for _, r := range registeredTargets(reg, inst) {
		var intents []fixture.Intent
		for role, v := range p.Values {
			if !r.Descriptor.HasRole(role) {
				continue
			}
			intents = append(intents, fixture.Intent{
				Key:    state.VisibleKey(role),
				Intent: state.ChannelIntent{Value: v * xf, Layer: inst.Layer, Blend: inst.Blend},
			})
		}
		if len(intents) > 0 {
			out[r.Descriptor.Name] = intents
		}
	}
	return out
}

func generateDimmer(reg *fixture.Registry, inst *Instance, p DimmerParams, elapsed time.Duration, xf float64) FixtureIntents {
	var progress float64
	if p.Duration == 0 {
		progress = 1
	} else {
		progress = float64(elapsed) / float64(p.Duration)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
	}
	c := curve.Apply(p.Curve, progress)
	level := p.StartLevel + (p.EndLevel-p.StartLevel)*c

	out := FixtureIntents{}
	for _, r := range registeredTargets(reg, inst) {
		out[r.Descriptor.Name] = fixture.ApplyBrightness(r, level*xf, inst.Layer, inst.Blend)
	}
	return out
}

func generateColorCycle(reg *fixture.Registry, inst *Instance, p ColorCycleParams, elapsed, absolute time.Duration, snap tempo.Snapshot, xf float64) FixtureIntents {
	out := FixtureIntents{}
	n := len(p.Colors)
	if n == 0 {
		return out
	}

	speed := p.Speed.ResolveCyclesPerSecond(snap, absolute)
	var col lightcolor.Color
	if speed <= 0 {
		col = p.Colors[0]
	} else {
		period := 1 / speed
		cp := math.Mod(elapsed.Seconds(), period) / period
		if cp < 0 {
			cp += 1
		}

		var i, next int
		var seg float64
		switch p.Direction {
		case Backward:
			r := 1 - cp
			idxf := r * float64(n)
			if idxf >= float64(n) {
				i, next, seg = n-1, n-1, 0
			} else {
				i = int(math.Floor(idxf))
				next = (i - 1 + n) % n
				seg = idxf - float64(i)
			}
		case PingPong:
			var pp float64
			if cp < 0.5 {
				pp = 2 * cp
			} else {
				pp = 2 * (1 - cp)
			}
			idxf := pp * float64(n-1)
			i = int(math.Floor(idxf))
			if i >= n-1 {
				i, next, seg = n-1, n-1, 0
			} else {
				next = i + 1
				seg = idxf - float64(i)
			}
		default: // Forward
			idxf := cp * float64(n)
			i = int(math.Floor(idxf))
			next = (i + 1) % n
			seg = idxf - float64(i)
		}

		if p.Transition == Fade {
			col = lightcolor.Lerp(p.Colors[i%n], p.Colors[next%n], seg)
		} else {
			col = p.Colors[i%n]
		}
	}

	for _, r := range registeredTargets(reg, inst) {
		intents := fixture.ApplyColor(r, col, inst.Layer, inst.Blend)
		for idx := range intents {
			intents[idx].Intent.Value *= xf
		}
		out[r.Descriptor.Name] = intents
	}
	return out
}

const defaultMaxStrobeHz = 20.0

func generateStrobe(reg *fixture.Registry, inst *Instance, p StrobeParams, elapsed, absolute time.Duration, snap tempo.Snapshot, xf float64) FixtureIntents {
	out := FixtureIntents{}
	freq := p.Frequency.ResolveHz(snap, absolute)

	for _, r := range registeredTargets(reg, inst) {
		if freq == 0 {
			if r.Profile.Strobe == fixture.DedicatedChannel {
				out[r.Descriptor.Name] = fixture.ApplyStrobe(r, 0, inst.Layer, inst.Blend, false)
			}
			continue
		}
		if r.Profile.Strobe == fixture.DedicatedChannel {
			max := defaultMaxStrobeHz
			if r.Descriptor.MaxStrobeFrequency > 0 {
				max = r.Descriptor.MaxStrobeFrequency
			}
			normalized := freq / max
			if normalized > 1 {
				normalized = 1
			}
			out[r.Descriptor.Name] = fixture.ApplyStrobe(r, normalized*xf, inst.Layer, inst.Blend, false)
			continue
		}
		period := 1 / freq
		phase := math.Mod(elapsed.Seconds(), period) / period
		if phase < 0 {
			phase += 1
		}
		on := phase < 0.5
		value := 0.0
		if on {
			value = 1.0
		}
		out[r.Descriptor.Name] = fixture.ApplyStrobe(r, value*xf, inst.Layer, inst.Blend, !on)
	}
	return out
}

func generateRainbow(reg *fixture.Registry, inst *Instance, p RainbowParams, elapsed, absolute time.Duration, snap tempo.Snapshot, xf float64) FixtureIntents {
	out := FixtureIntents{}
	speed := p.Speed.ResolveCyclesPerSecond(snap, absolute)
	hue := math.Mod(elapsed.Seconds()*speed*360, 360)
	if hue < 0 {
		hue += 360
	}
	col := lightcolor.FromHSV(hue, p.Saturation, p.Brightness)
	for _, r := range registeredTargets(reg, inst) {
		intents := fixture.ApplyColor(r, col, inst.Layer, inst.Blend)
		for idx := range intents {
			intents[idx].Intent.Value *= xf
		}
		out[r.Descriptor.Name] = intents
	}
	return out
}

func generatePulse(reg *fixture.Registry, inst *Instance, p PulseParams, elapsed, absolute time.Duration, snap tempo.Snapshot, xf float64) FixtureIntents {
	out := FixtureIntents{}
	freq := p.Frequency.ResolveHz(snap, absolute)
	phase := elapsed.Seconds() * freq * 2 * math.Pi
	value := (p.BaseLevel + p.PulseAmplitude*(math.Sin(phase)*0.5+0.5)) * xf
	for _, r := range registeredTargets(reg, inst) {
		out[r.Descriptor.Name] = fixture.ApplyPulse(r, value, inst.Layer, inst.Blend)
	}
	return out
}

// chaseOrder builds the position sequence (a permutation/sequence of
// fixture indices of length L) for a chase pattern, direction, and cue
// time, per §4.3.5 and the Random seed-derivation rule in §9.
func chaseOrder(pattern ChasePattern, direction ChaseDirection, cueTime time.Duration, n int) []int {
	if n == 0 {
		return nil
	}
	reversed := direction == ChaseReverse

	switch pattern {
	case PatternSnake:
		seq := make([]int, 0, 2*n-2)
		for i := 0; i < n; i++ {
			seq = append(seq, i)
		}
		for i := n - 2; i >= 1; i-- {
			seq = append(seq, i)
		}
		if reversed {
			reverseInts(seq)
		}
		return seq
	case PatternRandom:
		seq := make([]int, n)
		for i := range seq {
			seq[i] = i
		}
		seed := chaseRandomSeed(cueTime, n)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })
		return seq
	default: // Linear
		seq := make([]int, n)
		for i := range seq {
			seq[i] = i
		}
		if reversed {
			reverseInts(seq)
		}
		return seq
	}
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// chaseRandomSeed derives a deterministic seed from cue_time so seeking to
// the same cue position reproduces the same random order. Falls back to a
// seed computed from the fixture count alone when cue_time is the zero value (which should not happen
// in production use).
func chaseRandomSeed(cueTime time.Duration, n int) int64 {
	if cueTime == 0 {
		return int64(n)*7 + 13
	}
	h := fnv.New64a()
	var buf [16]byte
	nanos := uint64(cueTime.Nanoseconds())
	for i := 0; i < 8; i++ {
		buf[i] = byte(nanos >> (8 * i))
	}
	count := uint64(n)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(count >> (8 * i))
	}
	h.Write(buf[:])
	return int64(h.Sum64())
}

func generateChase(reg *fixture.Registry, inst *Instance, p ChaseParams, elapsed, absolute time.Duration, snap tempo.Snapshot, xf float64) FixtureIntents {
	out := FixtureIntents{}
	targets := registeredTargets(reg, inst)
	n := len(targets)
	if n == 0 {
		return out
	}

	speed := p.Speed.ResolveCyclesPerSecond(snap, absolute)
	if speed <= 0 {
		out[targets[0].Descriptor.Name] = fixture.ApplyChase(targets[0], xf, inst.Layer, inst.Blend)
		for _, r := range targets[1:] {
			out[r.Descriptor.Name] = fixture.ApplyChase(r, 0, inst.Layer, inst.Blend)
		}
		return out
	}

	sequence := chaseOrder(p.Pattern, p.Direction, inst.CueTime, n)
	l := len(sequence)
	if l == 0 {
		return out
	}
	positionDuration := (1 / speed) / float64(n)
	periodTotal := positionDuration * float64(l)
	patternProgress := math.Mod(elapsed.Seconds(), periodTotal) / periodTotal
	if patternProgress < 0 {
		patternProgress += 1
	}
	slotF := patternProgress * float64(l)
	slot := int(math.Floor(slotF))
	if slot >= l {
		slot = l - 1
	}
	pp := slotF - float64(slot)

	activity := make([]float64, n)
	switch p.Transition {
	case Fade:
		curIdx := sequence[slot]
		prevSlot := (slot - 1 + l) % l
		prevIdx := sequence[prevSlot]
		if pp < 0.5 {
			activity[curIdx] = pp / 0.5
			activity[prevIdx] = 1 - pp/0.5
		} else {
			activity[curIdx] = 1.0
		}
	default: // Snap
		activity[sequence[slot]] = 1.0
	}

	for i, r := range targets {
		out[r.Descriptor.Name] = fixture.ApplyChase(r, activity[i]*xf, inst.Layer, inst.Blend)
	}
	return out
}
