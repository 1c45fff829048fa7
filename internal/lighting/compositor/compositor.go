// Package compositor implements the layered effect compositor: the engine
// that advances active effects against virtual time, blends their
// per-channel contributions across layers, enforces channel locking,
// conflict resolution, crossfade envelopes, layer masters, freeze/release
// lifecycles, and emits a flat DMX command stream.
package compositor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chromaworks/lumen-engine/internal/lighting/effect"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/chromaworks/lumen-engine/internal/lighting/tempo"
)

// DmxCommand is one fixture-channel write produced by a frame's
// composition.
type DmxCommand struct {
	Universe uint16
	Channel  uint16
	Value    byte
}

// layerMaster holds the per-layer intensity/speed controls, defaulting to
// (1.0, 1.0) per §3 invariant 3.
type layerMaster struct {
	Intensity float64
	Speed     float64
}

type lockKey struct {
	Fixture string
	Role    state.Role
}

type resetTarget struct {
	Fixture string
	Role    state.Role
}

// Engine is the sole owner of the active effect set, per-fixture state
// cache, channel-lock table, per-layer masters, freeze-interval table, and
// virtual clock. It is single-threaded and cooperative: exactly one caller
// drives it via Update at a time (§5).
type Engine struct {
	registry *fixture.Registry

	order   []string // insertion order of instance ids, for stable priority ties
	effects map[string]*effect.Instance

	clock time.Duration

	masters     map[state.Layer]*layerMaster
	frozen      map[state.Layer]bool
	frozenAccum map[state.Layer]time.Duration

	locks map[lockKey]float64

	lastFixtureStates map[string]state.FixtureState
	lastLayerStates   map[state.Layer]map[string]state.FixtureState

	pendingResets []resetTarget

	tempoSnapshot tempo.Snapshot
}

// NewEngine constructs an Engine bound to the given fixture registry.
func NewEngine(registry *fixture.Registry) *Engine {
	e := &Engine{
		registry:          registry,
		effects:           make(map[string]*effect.Instance),
		masters:           make(map[state.Layer]*layerMaster),
		frozen:            make(map[state.Layer]bool),
		frozenAccum:       make(map[state.Layer]time.Duration),
		locks:             make(map[lockKey]float64),
		lastFixtureStates: make(map[string]state.FixtureState),
		lastLayerStates:   make(map[state.Layer]map[string]state.FixtureState),
	}
	for _, l := range state.Layers {
		e.masters[l] = &layerMaster{Intensity: 1, Speed: 1}
		e.lastLayerStates[l] = make(map[string]state.FixtureState)
	}
	return e
}

// RegisterFixture upserts a fixture descriptor into the engine's registry.
func (e *Engine) RegisterFixture(d fixture.Descriptor) {
	e.registry.Register(d)
}

// SetTempoMap stores the default tempo snapshot consulted by tempo-aware
// generators when Update is called without an explicit override.
func (e *Engine) SetTempoMap(snap tempo.Snapshot) {
	e.tempoSnapshot = snap
}

// StartEffect validates inst, resolves conflicts with the existing active
// set, and — on success — inserts it with start_time set to the engine's
// current virtual time.
func (e *Engine) StartEffect(inst *effect.Instance) error {
	return e.startEffect(inst, 0)
}

// StartEffectWithElapsed is StartEffect but treats inst as if it had
// already been running for e0: start_time is shifted back accordingly.
// Used by a timeline host to resume or seek.
func (e *Engine) StartEffectWithElapsed(inst *effect.Instance, e0 time.Duration) error {
	return e.startEffect(inst, e0)
}

func (e *Engine) startEffect(inst *effect.Instance, e0 time.Duration) error {
	if inst.ID == "" {
		return fmt.Errorf("effect instance must have a non-empty id")
	}
	if err := effect.Validate(e.registry, inst); err != nil {
		return err
	}

	for _, id := range e.order {
		existing, ok := e.effects[id]
		if !ok {
			continue
		}
		if effect.ShouldConflict(existing, inst) {
			e.terminateInstance(existing, true)
		}
	}
	e.pruneEnded()

	inst.StartTime = e.clock - e0
	inst.State = effect.Active
	inst.IndefiniteAtAcceptance = inst.Envelope.Indefinite()

	e.effects[inst.ID] = inst
	e.order = append(e.order, inst.ID)
	return nil
}

// pruneEnded removes instances marked Ended from the order slice and map.
func (e *Engine) pruneEnded() {
	kept := e.order[:0]
	for _, id := range e.order {
		inst, ok := e.effects[id]
		if !ok {
			continue
		}
		if inst.State == effect.Ended {
			delete(e.effects, id)
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
}

// terminateInstance ends inst now. If it was a Foreground Replace effect
// that was indefinite when accepted, its last-known visible roles are
// latched into the lock table. The fixtures/roles it was writing are
// queued for a trailing zero reset frame.
func (e *Engine) terminateInstance(inst *effect.Instance, immediate bool) {
	if inst.State == effect.Ended {
		return
	}
	inst.State = effect.Ended

	last, ok := e.lastInstanceRoles(inst)
	if !ok {
		return
	}
	shouldLock := inst.Layer == state.Foreground && inst.Blend == state.Replace && inst.IndefiniteAtAcceptance
	for fixtureName, roles := range last {
		fs := e.lastFixtureStates[fixtureName]
		for _, role := range roles {
			if shouldLock {
				if v, ok := fs[state.VisibleKey(role)]; ok {
					e.locks[lockKey{Fixture: fixtureName, Role: role}] = v.Value
				}
			}
			e.pendingResets = append(e.pendingResets, resetTarget{Fixture: fixtureName, Role: role})
		}
	}
	_ = immediate
}

// lastInstanceRoles reports, per target fixture, which visible roles inst
// contributed to in the most recently computed layer state.
func (e *Engine) lastInstanceRoles(inst *effect.Instance) (map[string][]state.Role, bool) {
	layerState := e.lastLayerStates[inst.Layer]
	out := make(map[string][]state.Role)
	for _, name := range inst.Targets {
		fs, ok := layerState[name]
		if !ok {
			continue
		}
		for k := range fs {
			if !k.IsMarker() {
				out[name] = append(out[name], k.Role)
			}
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// StopSequence removes every active or releasing effect whose id begins
// with prefix. The host supplies the full prefix (e.g. "seq_intro_");
// the engine treats ids as opaque strings.
func (e *Engine) StopSequence(prefix string) {
	for _, id := range e.order {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			if inst, ok := e.effects[id]; ok && inst.State != effect.Ended {
				e.terminateInstance(inst, true)
			}
		}
	}
}

// ClearLayer removes every effect on layer and clears any channel locks
// recorded against it (locks only ever originate on Foreground, so
// clearing Foreground clears the whole lock table).
func (e *Engine) ClearLayer(l state.Layer) {
	for _, id := range e.order {
		inst, ok := e.effects[id]
		if !ok || inst.Layer != l || inst.State == effect.Ended {
			continue
		}
		e.terminateInstance(inst, true)
	}
	if l == state.Foreground {
		e.locks = make(map[lockKey]float64)
	}
}

// ClearAllLayers removes every effect on every layer and clears all locks.
func (e *Engine) ClearAllLayers() {
	for _, l := range state.Layers {
		e.ClearLayer(l)
	}
}

// ReleaseLayer is ReleaseLayerWithTime(l, nil): immediate termination.
func (e *Engine) ReleaseLayer(l state.Layer) {
	e.ReleaseLayerWithTime(l, nil)
}

// ReleaseLayerWithTime schedules every active, non-terminating effect on l
// to fade out over fade, starting now; a nil fade terminates immediately.
// If l was frozen, it is unfrozen first so the release starts from the
// currently visible state rather than jumping.
func (e *Engine) ReleaseLayerWithTime(l state.Layer, fade *time.Duration) {
	if e.frozen[l] {
		e.UnfreezeLayer(l)
	}
	speed := e.masters[l].Speed
	for _, id := range e.order {
		inst, ok := e.effects[id]
		if !ok || inst.Layer != l || inst.State == effect.Ended {
			continue
		}
		if fade == nil {
			e.terminateInstance(inst, true)
			continue
		}
		elapsed := time.Duration(float64(e.clock-inst.StartTime) * speed)
		f := *fade
		inst.Envelope = effect.Envelope{Up: elapsed, Hold: 0, Down: &f}
		inst.ReleasedExplicitly = true
		inst.State = effect.Releasing
	}
}

// FreezeLayer stops the compositor from advancing effects on l; their last
// computed contribution keeps being re-emitted every frame.
func (e *Engine) FreezeLayer(l state.Layer) {
	e.frozen[l] = true
}

// UnfreezeLayer resumes animation on l by shifting every effect's
// start_time forward by the layer's accumulated frozen interval, so
// animation continues from the frozen instant with no jump.
func (e *Engine) UnfreezeLayer(l state.Layer) {
	accum := e.frozenAccum[l]
	if accum > 0 {
		for _, id := range e.order {
			inst, ok := e.effects[id]
			if !ok || inst.Layer != l {
				continue
			}
			inst.StartTime += accum
		}
	}
	e.frozenAccum[l] = 0
	e.frozen[l] = false
}

// IsLayerFrozen reports whether l is currently frozen.
func (e *Engine) IsLayerFrozen(l state.Layer) bool { return e.frozen[l] }

// SetLayerIntensityMaster clamps x to [0,1] and sets l's intensity master.
func (e *Engine) SetLayerIntensityMaster(l state.Layer, x float64) {
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	e.masters[l].Intensity = x
}

// GetLayerIntensityMaster reads l's intensity master.
func (e *Engine) GetLayerIntensityMaster(l state.Layer) float64 { return e.masters[l].Intensity }

// SetLayerSpeedMaster sets l's speed master to x (x must be >= 0; negative
// values clamp to 0).
func (e *Engine) SetLayerSpeedMaster(l state.Layer, x float64) {
	if x < 0 {
		x = 0
	}
	e.masters[l].Speed = x
}

// GetLayerSpeedMaster reads l's speed master.
func (e *Engine) GetLayerSpeedMaster(l state.Layer) float64 { return e.masters[l].Speed }

// StopAllEffects removes every effect, clears per-fixture state and every
// channel lock.
func (e *Engine) StopAllEffects() {
	e.ClearAllLayers()
	e.lastFixtureStates = make(map[string]state.FixtureState)
	for _, l := range state.Layers {
		e.lastLayerStates[l] = make(map[string]state.FixtureState)
	}
	e.locks = make(map[lockKey]float64)
}

// GetActiveEffects returns a read-only snapshot of every non-ended effect,
// for tooling/UI.
func (e *Engine) GetActiveEffects() []*effect.Instance {
	out := make([]*effect.Instance, 0, len(e.order))
	for _, id := range e.order {
		if inst, ok := e.effects[id]; ok && inst.State != effect.Ended {
			out = append(out, inst)
		}
	}
	return out
}

// GetFixtureStates returns a read-only snapshot of the last composited
// per-fixture state, for tooling/UI.
func (e *Engine) GetFixtureStates() map[string]state.FixtureState {
	out := make(map[string]state.FixtureState, len(e.lastFixtureStates))
	for name, fs := range e.lastFixtureStates {
		cp := make(state.FixtureState, len(fs))
		for k, v := range fs {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// Update advances virtual time by dt and returns the ordered DMX command
// stream for this frame. snap overrides the stored tempo snapshot for this
// call only; pass nil to use whatever was last set via SetTempoMap.
func (e *Engine) Update(dt time.Duration, snap tempo.Snapshot) []DmxCommand {
	if snap == nil {
		snap = e.tempoSnapshot
	}
	e.clock += dt
	for l, frozen := range e.frozen {
		if frozen {
			e.frozenAccum[l] += dt
		}
	}

	perFixture := make(map[string]state.FixtureState)
	e.seedLocks(perFixture)

	var ending []*effect.Instance

	for _, l := range state.Layers {
		layerState := make(map[string]state.FixtureState)
		master := e.masters[l]

		ids := e.idsForLayer(l)
		sort.SliceStable(ids, func(i, j int) bool {
			return e.effects[ids[i]].Priority < e.effects[ids[j]].Priority
		})

		frozenMerged := false
		for _, id := range ids {
			inst := e.effects[id]
			if !inst.Enabled || inst.State == effect.Ended {
				continue
			}

			if e.frozen[l] {
				if !frozenMerged {
					e.mergeLayerContribution(perFixture, e.lastLayerStates[l], l)
					frozenMerged = true
				}
				continue
			}

			elapsed := time.Duration(float64(e.clock-inst.StartTime) * master.Speed)

			terminable := !inst.IsPermanent() || inst.ReleasedExplicitly
			total, hasEnd := inst.Envelope.NaturalEnd()
			switch {
			case terminable && hasEnd && elapsed >= total:
				ending = append(ending, inst)
			case hasEnd && elapsed >= inst.Envelope.Up+inst.Envelope.Hold:
				inst.State = effect.Releasing
			}

			intents := effect.Generate(e.registry, inst, elapsed, e.clock, snap)
			e.applyIntents(perFixture, layerState, inst, intents, master.Intensity)
		}

		if !e.frozen[l] {
			e.lastLayerStates[l] = layerState
		}
	}

	for fixtureName, fs := range perFixture {
		fs.CollapseMultipliers()
		e.lastFixtureStates[fixtureName] = fs
	}

	for _, inst := range ending {
		e.terminateInstance(inst, false)
	}
	e.pruneEnded()

	return e.emit(perFixture)
}

// seedLocks pre-populates perFixture with any currently locked roles so
// they keep emitting their latched value even if no effect touches them
// this frame.
func (e *Engine) seedLocks(perFixture map[string]state.FixtureState) {
	for k, v := range e.locks {
		fs, ok := perFixture[k.Fixture]
		if !ok {
			fs = make(state.FixtureState)
			perFixture[k.Fixture] = fs
		}
		fs[state.VisibleKey(k.Role)] = state.ChannelIntent{Value: v, Layer: state.Foreground, Blend: state.Replace}
	}
}

func (e *Engine) idsForLayer(l state.Layer) []string {
	out := make([]string, 0, len(e.order))
	for _, id := range e.order {
		if inst, ok := e.effects[id]; ok && inst.Layer == l {
			out = append(out, id)
		}
	}
	return out
}

// mergeLayerContribution re-emits a frozen layer's last computed state
// into the frame's accumulating per-fixture state, unchanged.
func (e *Engine) mergeLayerContribution(perFixture map[string]state.FixtureState, last map[string]state.FixtureState, l state.Layer) {
	for fixtureName, fs := range last {
		dst, ok := perFixture[fixtureName]
		if !ok {
			dst = make(state.FixtureState)
			perFixture[fixtureName] = dst
		}
		for k, v := range fs {
			dst.Merge(k, v)
		}
	}
}

// applyIntents folds one effect's generated intents into both the frame
// accumulator and that layer's own last-state record, applying the layer
// intensity master and channel-lock enforcement.
func (e *Engine) applyIntents(perFixture map[string]state.FixtureState, layerState map[string]state.FixtureState, inst *effect.Instance, intents effect.FixtureIntents, intensityMaster float64) {
	for fixtureName, fixtureIntents := range intents {
		dst, ok := perFixture[fixtureName]
		if !ok {
			dst = make(state.FixtureState)
			perFixture[fixtureName] = dst
		}
		ls, ok := layerState[fixtureName]
		if !ok {
			ls = make(state.FixtureState)
			layerState[fixtureName] = ls
		}

		for _, fi := range fixtureIntents {
			ci := fi.Intent
			ci.Value *= intensityMaster

			if !fi.Key.IsMarker() {
				lk := lockKey{Fixture: fixtureName, Role: fi.Key.Role}
				if _, locked := e.locks[lk]; locked {
					if inst.Layer == state.Foreground && inst.Blend == state.Replace {
						delete(e.locks, lk)
					} else {
						continue
					}
				}
			}

			dst.Merge(fi.Key, ci)
			ls.Merge(fi.Key, ci)
		}
	}
}

// emit converts the frame's collapsed per-fixture state into a DmxCommand
// list, adds the one-shot zero-reset commands queued by any clear/stop
// since the last frame, and returns the list sorted by universe, then
// channel.
func (e *Engine) emit(perFixture map[string]state.FixtureState) []DmxCommand {
	var out []DmxCommand
	written := make(map[lockKey]bool)

	for fixtureName, fs := range perFixture {
		reg, ok := e.registry.Get(fixtureName)
		if !ok {
			continue
		}
		for k, intent := range fs {
			if k.IsMarker() {
				continue
			}
			addr, ok := reg.Descriptor.Address(k.Role)
			if !ok {
				continue
			}
			out = append(out, DmxCommand{
				Universe: reg.Descriptor.Universe,
				Channel:  addr,
				Value:    toByte(intent.Value),
			})
			written[lockKey{Fixture: fixtureName, Role: k.Role}] = true
		}
	}

	for _, r := range e.pendingResets {
		if written[lockKey{Fixture: r.Fixture, Role: r.Role}] {
			continue
		}
		reg, ok := e.registry.Get(r.Fixture)
		if !ok {
			continue
		}
		addr, ok := reg.Descriptor.Address(r.Role)
		if !ok {
			continue
		}
		out = append(out, DmxCommand{Universe: reg.Descriptor.Universe, Channel: addr, Value: 0})
	}
	e.pendingResets = nil

	sort.Slice(out, func(i, j int) bool {
		if out[i].Universe != out[j].Universe {
			return out[i].Universe < out[j].Universe
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func toByte(v float64) byte {
	v = v * 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(math.Round(v))
}
