// Package models contains the database model definitions. These persist
// the host-side domain objects that sit outside the engine core: fixture
// descriptors so a rig doesn't need re-registering on every boot, named
// effect presets, and miscellaneous settings.
package models

import (
	"time"
)

// FixtureRecord persists a fixture.Descriptor so a host process can reload
// a rig's wiring without re-issuing register_fixture calls on every
// restart. ChannelsJSON holds the role->offset map as a JSON object, e.g.
// {"red":1,"green":2,"blue":3}.
// Table: fixture_records
type FixtureRecord struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	Name               string    `gorm:"column:name;uniqueIndex"`
	Universe           int       `gorm:"column:universe"`
	BaseAddress        int       `gorm:"column:base_address"`
	ChannelsJSON       string    `gorm:"column:channels_json"`
	FixtureType        string    `gorm:"column:fixture_type"`
	MaxStrobeFrequency float64   `gorm:"column:max_strobe_frequency"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FixtureRecord) TableName() string { return "fixture_records" }

// EffectPreset persists a named, reusable effect definition: everything
// start_effect needs except a freshly chosen instance id and start time.
// ParamsJSON holds the type-specific parameter struct (StaticParams,
// DimmerParams, ...) serialized as JSON, tagged by Type so the host can
// deserialize it into the right Go type.
// Table: effect_presets
type EffectPreset struct {
	ID             string `gorm:"column:id;primaryKey"`
	Name           string `gorm:"column:name;uniqueIndex"`
	Type           string `gorm:"column:type"`
	ParamsJSON     string `gorm:"column:params_json"`
	TargetsCSV     string `gorm:"column:targets_csv"` // comma-separated fixture names
	Layer          int    `gorm:"column:layer"`
	Blend          int    `gorm:"column:blend"`
	Priority       int    `gorm:"column:priority"`
	EnvelopeUpMs   int64  `gorm:"column:envelope_up_ms"`
	EnvelopeHoldMs int64  `gorm:"column:envelope_hold_ms"`
	// EnvelopeDownMs is nil for an indefinite envelope (no down phase).
	EnvelopeDownMs *int64 `gorm:"column:envelope_down_ms"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (EffectPreset) TableName() string { return "effect_presets" }

// Setting is a flat key/value store for host-level configuration that
// needs to survive a restart, e.g. the last-configured Art-Net broadcast
// address.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }
