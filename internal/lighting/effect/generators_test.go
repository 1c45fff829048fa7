package effect

import (
	"math"
	"testing"
	"time"

	lightcolor "github.com/chromaworks/lumen-engine/internal/lighting/color"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/chromaworks/lumen-engine/internal/lighting/tempo"
)

func rgbRegistry(names ...string) *fixture.Registry {
	r := fixture.NewRegistry()
	for i, n := range names {
		r.Register(fixture.Descriptor{
			Name: n, Universe: 1, BaseAddress: uint16(1 + i*10),
			Channels: map[state.Role]uint16{state.RoleRed: 0, state.RoleGreen: 1, state.RoleBlue: 2},
		})
	}
	return r
}

func dimmerRegistry(names ...string) *fixture.Registry {
	r := fixture.NewRegistry()
	for i, n := range names {
		r.Register(fixture.Descriptor{
			Name: n, Universe: 1, BaseAddress: uint16(1 + i*10),
			Channels: map[state.Role]uint16{state.RoleDimmer: 0},
		})
	}
	return r
}

func valueFor(intents FixtureIntents, fixtureName string, role state.Role) (float64, bool) {
	for _, i := range intents[fixtureName] {
		if i.Key.Role == role && i.Key.Kind == state.Visible {
			return i.Intent.Value, true
		}
	}
	return 0, false
}

func TestColorCyclePingPongPeaks(t *testing.T) {
	reg := rgbRegistry("A")
	colors := []lightcolor.Color{lightcolor.RGB(255, 0, 0), lightcolor.RGB(0, 255, 0), lightcolor.RGB(0, 0, 255)}
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Background, Blend: state.Replace,
		Params: ColorCycleParams{Colors: colors, Speed: tempo.Fixed(1), Direction: PingPong, Transition: Snap},
	}

	at0 := Generate(reg, inst, 0, 0, nil)
	r, _ := valueFor(at0, "A", state.RoleRed)
	if r != 1.0 {
		t.Errorf("expected red at t=0, got r=%v", r)
	}

	at500 := Generate(reg, inst, 500*time.Millisecond, 0, nil)
	b, _ := valueFor(at500, "A", state.RoleBlue)
	if b != 1.0 {
		t.Errorf("expected blue at t=500ms, got b=%v", b)
	}

	at1000 := Generate(reg, inst, time.Second, 0, nil)
	r2, _ := valueFor(at1000, "A", state.RoleRed)
	if r2 != 1.0 {
		t.Errorf("expected red again at t=1000ms (full cycle), got r=%v", r2)
	}
}

func TestColorCycleFadeContinuity(t *testing.T) {
	reg := rgbRegistry("A")
	colors := []lightcolor.Color{lightcolor.RGB(255, 0, 0), lightcolor.RGB(0, 255, 0), lightcolor.RGB(0, 0, 255)}
	n := len(colors)
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Background, Blend: state.Replace,
		Params: ColorCycleParams{Colors: colors, Speed: tempo.Fixed(1), Direction: Forward, Transition: Fade},
	}
	elapsed := time.Duration(float64(time.Second) * (0 + 0.5) / float64(n))
	out := Generate(reg, inst, elapsed, 0, nil)
	want := lightcolor.Lerp(colors[0], colors[1], 0.5)
	r, _ := valueFor(out, "A", state.RoleRed)
	if math.Abs(r-float64(want.R)/255) > 0.02 {
		t.Errorf("expected red ~= %v, got %v", float64(want.R)/255, r)
	}
}

func TestDimmerPermanenceHoldsEndLevel(t *testing.T) {
	reg := dimmerRegistry("A")
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Foreground, Blend: state.Replace,
		Params: DimmerParams{StartLevel: 1, EndLevel: 0, Duration: 2 * time.Second},
	}
	out := Generate(reg, inst, 10*time.Second, 0, nil)
	v, ok := valueFor(out, "A", state.RoleDimmer)
	if !ok || v != 0 {
		t.Errorf("expected dimmer held at end_level=0 long after duration, got %v ok=%v", v, ok)
	}
}

func TestRainbowWrapsAroundAfterFullCycle(t *testing.T) {
	reg := rgbRegistry("A")
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Background, Blend: state.Replace,
		Params: RainbowParams{Speed: tempo.Fixed(1), Saturation: 1, Brightness: 1},
	}
	at0 := Generate(reg, inst, 0, 0, nil)
	at1000 := Generate(reg, inst, time.Second, 0, nil)
	r0, _ := valueFor(at0, "A", state.RoleRed)
	r1, _ := valueFor(at1000, "A", state.RoleRed)
	if math.Abs(r0-r1) > 1.0/255 {
		t.Errorf("expected byte-equal red across a full rainbow cycle, got %v vs %v", r0, r1)
	}
	if r0 != 1.0 {
		t.Errorf("expected red to dominate at t=0, got %v", r0)
	}
}

func TestChaseLinearExactlyOneActive(t *testing.T) {
	reg := dimmerRegistry("A", "B", "C")
	inst := &Instance{
		Enabled: true, Targets: []string{"A", "B", "C"}, Layer: state.Foreground, Blend: state.Replace,
		Params: ChaseParams{Pattern: PatternLinear, Speed: tempo.Fixed(1), Direction: ChaseForward, Transition: Snap},
	}
	for _, ms := range []int{0, 350, 700, 1050} {
		out := Generate(reg, inst, time.Duration(ms)*time.Millisecond, 0, nil)
		active := 0
		for _, name := range []string{"A", "B", "C"} {
			v, _ := valueFor(out, name, state.RoleDimmer)
			if v == 1.0 {
				active++
			} else if v != 0 {
				t.Errorf("expected 0 or 1 in Snap mode, got %v at t=%dms", v, ms)
			}
		}
		if active != 1 {
			t.Errorf("expected exactly one active fixture at t=%dms, got %d", ms, active)
		}
	}
}

func TestChaseRandomDeterministicForSameCueTime(t *testing.T) {
	reg := dimmerRegistry("A", "B", "C", "D")
	cueTime := 5 * time.Second
	mk := func() *Instance {
		return &Instance{
			Enabled: true, Targets: []string{"A", "B", "C", "D"}, Layer: state.Foreground, Blend: state.Replace,
			CueTime: cueTime,
			Params:  ChaseParams{Pattern: PatternRandom, Speed: tempo.Fixed(1), Direction: ChaseForward, Transition: Snap},
		}
	}
	out1 := Generate(reg, mk(), 100*time.Millisecond, 0, nil)
	out2 := Generate(reg, mk(), 100*time.Millisecond, 0, nil)
	for _, name := range []string{"A", "B", "C", "D"} {
		v1, _ := valueFor(out1, name, state.RoleDimmer)
		v2, _ := valueFor(out2, name, state.RoleDimmer)
		if v1 != v2 {
			t.Errorf("expected identical chase order for identical cue_time, fixture %s: %v vs %v", name, v1, v2)
		}
	}
}

func TestStrobeDedicatedChannelNormalization(t *testing.T) {
	r := fixture.NewRegistry()
	r.Register(fixture.Descriptor{
		Name: "A", Universe: 1, BaseAddress: 1, FixtureType: "RGB Strobe",
		Channels:           map[state.Role]uint16{state.RoleStrobe: 3, state.RoleRed: 0, state.RoleGreen: 1, state.RoleBlue: 2},
		MaxStrobeFrequency: 20,
	})
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Foreground, Blend: state.Replace,
		Params: StrobeParams{Frequency: tempo.Fixed(10)},
	}
	out := Generate(r, inst, 16*time.Millisecond, 0, nil)
	v, ok := valueFor(out, "A", state.RoleStrobe)
	if !ok {
		t.Fatal("expected a strobe intent")
	}
	got := math.Round(v * 255)
	if got != 128 {
		t.Errorf("expected strobe value 128, got %v", got)
	}
}

func TestPulseStartsAtMidpointOfSwing(t *testing.T) {
	reg := dimmerRegistry("A")
	inst := &Instance{
		Enabled: true, Targets: []string{"A"}, Layer: state.Foreground, Blend: state.Replace,
		Params: PulseParams{BaseLevel: 0.5, PulseAmplitude: 0.5, Frequency: tempo.Fixed(1)},
	}
	out := Generate(reg, inst, 0, 0, nil)
	v, _ := valueFor(out, "A", state.RoleDimmer)
	if math.Abs(v-0.75) > 1e-9 {
		t.Errorf("expected pulse value ~0.75 (base + amplitude/2) at phase 0, got %v", v)
	}
}
