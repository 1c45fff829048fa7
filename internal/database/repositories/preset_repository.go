package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromaworks/lumen-engine/internal/database/models"
	"github.com/chromaworks/lumen-engine/internal/lighting/effect"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// PresetRepository persists named, reusable effect definitions: everything
// start_effect needs except a freshly chosen instance id and start time.
type PresetRepository struct {
	db *gorm.DB
}

// NewPresetRepository creates a new PresetRepository.
func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// FindAll returns every persisted preset, by name.
func (r *PresetRepository) FindAll(ctx context.Context) ([]models.EffectPreset, error) {
	var presets []models.EffectPreset
	result := r.db.WithContext(ctx).Order("name ASC").Find(&presets)
	return presets, result.Error
}

// FindByName returns a single persisted preset by name.
func (r *PresetRepository) FindByName(ctx context.Context, name string) (*models.EffectPreset, error) {
	var preset models.EffectPreset
	result := r.db.WithContext(ctx).First(&preset, "name = ?", name)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &preset, nil
}

// Upsert encodes inst (minus its runtime scheduling fields) into a named
// preset row and creates or overwrites it.
func (r *PresetRepository) Upsert(ctx context.Context, name string, inst *effect.Instance) error {
	paramsJSON, err := json.Marshal(inst.Params)
	if err != nil {
		return fmt.Errorf("encode params for preset %q: %w", name, err)
	}

	var downMs *int64
	if !inst.Envelope.Indefinite() {
		ms := int64(*inst.Envelope.Down / time.Millisecond)
		downMs = &ms
	}

	row := models.EffectPreset{
		Name:           name,
		Type:           string(inst.Params.Kind()),
		ParamsJSON:     string(paramsJSON),
		TargetsCSV:     strings.Join(inst.Targets, ","),
		Layer:          int(inst.Layer),
		Blend:          int(inst.Blend),
		Priority:       inst.Priority,
		EnvelopeUpMs:   int64(inst.Envelope.Up / time.Millisecond),
		EnvelopeHoldMs: int64(inst.Envelope.Hold / time.Millisecond),
		EnvelopeDownMs: downMs,
	}

	var existing models.EffectPreset
	result := r.db.WithContext(ctx).First(&existing, "name = ?", name)
	if result.Error == gorm.ErrRecordNotFound {
		row.ID = cuid.New()
		return r.db.WithContext(ctx).Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(&row).Error
}

// Delete removes a persisted preset by name.
func (r *PresetRepository) Delete(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Delete(&models.EffectPreset{}, "name = ?", name).Error
}

// ToInstance decodes a preset row back into an effect.Instance, assigning
// it id as a fresh instance identity. The caller still owns Enabled and
// CueTime, which aren't part of the preset.
func ToInstance(row models.EffectPreset, id string) (*effect.Instance, error) {
	params, err := DecodeParams(effect.Type(row.Type), row.ParamsJSON)
	if err != nil {
		return nil, fmt.Errorf("decode preset %q: %w", row.Name, err)
	}

	var targets []string
	if row.TargetsCSV != "" {
		targets = strings.Split(row.TargetsCSV, ",")
	}

	env := effect.Envelope{
		Up:   time.Duration(row.EnvelopeUpMs) * time.Millisecond,
		Hold: time.Duration(row.EnvelopeHoldMs) * time.Millisecond,
	}
	if row.EnvelopeDownMs != nil {
		env = env.WithDown(time.Duration(*row.EnvelopeDownMs) * time.Millisecond)
	}

	return &effect.Instance{
		ID:       id,
		Params:   params,
		Targets:  targets,
		Layer:    state.Layer(row.Layer),
		Blend:    state.BlendMode(row.Blend),
		Priority: row.Priority,
		Envelope: env,
		Enabled:  true,
	}, nil
}

// DecodeParams decodes a preset row's ParamsJSON into the concrete Params
// type for kind. Exported so callers building an Instance from a request
// body (rather than a stored row) can reuse the same switch.
func DecodeParams(kind effect.Type, raw string) (effect.Params, error) {
	switch kind {
	case effect.TypeStatic:
		var p effect.StaticParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypeDimmer:
		var p effect.DimmerParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypeColorCycle:
		var p effect.ColorCycleParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypeStrobe:
		var p effect.StrobeParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypeChase:
		var p effect.ChaseParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypeRainbow:
		var p effect.RainbowParams
		return p, json.Unmarshal([]byte(raw), &p)
	case effect.TypePulse:
		var p effect.PulseParams
		return p, json.Unmarshal([]byte(raw), &p)
	default:
		return nil, fmt.Errorf("unknown effect type %q", kind)
	}
}
