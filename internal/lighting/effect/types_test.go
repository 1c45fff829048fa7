package effect

import (
	"testing"
	"time"
)

func TestCrossfadeUpPhase(t *testing.T) {
	env := Envelope{Up: time.Second, Hold: time.Second}.WithDown(time.Second)
	xf, ended := Crossfade(env, 500*time.Millisecond)
	if ended {
		t.Error("did not expect ended during up phase")
	}
	if xf != 0.5 {
		t.Errorf("expected xf=0.5 at half of up, got %v", xf)
	}
}

func TestCrossfadeHoldPhase(t *testing.T) {
	env := Envelope{Up: time.Second, Hold: time.Second}.WithDown(time.Second)
	xf, ended := Crossfade(env, 1500*time.Millisecond)
	if ended || xf != 1 {
		t.Errorf("expected xf=1 during hold, got xf=%v ended=%v", xf, ended)
	}
}

func TestCrossfadeDownPhase(t *testing.T) {
	env := Envelope{Up: time.Second, Hold: time.Second}.WithDown(time.Second)
	xf, ended := Crossfade(env, 2500*time.Millisecond)
	if ended {
		t.Error("did not expect ended mid-down")
	}
	if xf != 0.5 {
		t.Errorf("expected xf=0.5 at half of down, got %v", xf)
	}
}

func TestCrossfadeEndsAtTotal(t *testing.T) {
	env := Envelope{Up: time.Second, Hold: time.Second}.WithDown(time.Second)
	xf, ended := Crossfade(env, 3*time.Second)
	if !ended {
		t.Error("expected ended at elapsed==total")
	}
	if xf != 0 {
		t.Errorf("expected xf=0 at end, got %v", xf)
	}
}

func TestCrossfadeZeroUpEntersHoldImmediately(t *testing.T) {
	env := Envelope{Hold: time.Second}
	xf, ended := Crossfade(env, 0)
	if ended || xf != 1 {
		t.Errorf("expected xf=1, ended=false at elapsed=0 with no up phase, got xf=%v ended=%v", xf, ended)
	}
}

func TestCrossfadeIndefiniteHoldsAtOne(t *testing.T) {
	env := Envelope{}
	xf, ended := Crossfade(env, 10*time.Second)
	if ended || xf != 1 {
		t.Errorf("expected an indefinite envelope to hold at xf=1 forever, got xf=%v ended=%v", xf, ended)
	}
}

func TestEnvelopeIndefiniteWithNoDown(t *testing.T) {
	env := Envelope{Up: time.Second, Hold: time.Second}
	if !env.Indefinite() {
		t.Error("expected an envelope with no down phase to be indefinite")
	}
}

func TestIsPermanentOnlyForDimmer(t *testing.T) {
	dimmer := &Instance{Params: DimmerParams{}}
	static := &Instance{Params: StaticParams{}}
	if !dimmer.IsPermanent() {
		t.Error("expected Dimmer to be permanent")
	}
	if static.IsPermanent() {
		t.Error("did not expect Static to be permanent")
	}
}
