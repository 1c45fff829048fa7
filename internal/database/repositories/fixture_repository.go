package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromaworks/lumen-engine/internal/database/models"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// FixtureRepository handles fixture descriptor persistence, so a host
// process can reload a rig's wiring without re-issuing register_fixture
// calls on every restart.
type FixtureRepository struct {
	db *gorm.DB
}

// NewFixtureRepository creates a new FixtureRepository.
func NewFixtureRepository(db *gorm.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// FindAll returns every persisted fixture descriptor.
func (r *FixtureRepository) FindAll(ctx context.Context) ([]fixture.Descriptor, error) {
	var records []models.FixtureRecord
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]fixture.Descriptor, 0, len(records))
	for _, rec := range records {
		d, err := recordToDescriptor(rec)
		if err != nil {
			return nil, fmt.Errorf("fixture record %q: %w", rec.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FindByName returns a single persisted fixture descriptor by name.
func (r *FixtureRepository) FindByName(ctx context.Context, name string) (*fixture.Descriptor, error) {
	var rec models.FixtureRecord
	result := r.db.WithContext(ctx).First(&rec, "name = ?", name)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	d, err := recordToDescriptor(rec)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Upsert creates or updates the persisted record for a fixture descriptor,
// keyed by name.
func (r *FixtureRepository) Upsert(ctx context.Context, d fixture.Descriptor) error {
	channelsJSON, err := json.Marshal(d.Channels)
	if err != nil {
		return fmt.Errorf("encode channels for fixture %q: %w", d.Name, err)
	}

	var existing models.FixtureRecord
	result := r.db.WithContext(ctx).First(&existing, "name = ?", d.Name)
	if result.Error == gorm.ErrRecordNotFound {
		rec := models.FixtureRecord{
			ID:                 cuid.New(),
			Name:               d.Name,
			Universe:           int(d.Universe),
			BaseAddress:        int(d.BaseAddress),
			ChannelsJSON:       string(channelsJSON),
			FixtureType:        d.FixtureType,
			MaxStrobeFrequency: d.MaxStrobeFrequency,
		}
		return r.db.WithContext(ctx).Create(&rec).Error
	} else if result.Error != nil {
		return result.Error
	}

	existing.Universe = int(d.Universe)
	existing.BaseAddress = int(d.BaseAddress)
	existing.ChannelsJSON = string(channelsJSON)
	existing.FixtureType = d.FixtureType
	existing.MaxStrobeFrequency = d.MaxStrobeFrequency
	return r.db.WithContext(ctx).Save(&existing).Error
}

// Delete removes a persisted fixture descriptor by name.
func (r *FixtureRepository) Delete(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Delete(&models.FixtureRecord{}, "name = ?", name).Error
}

func recordToDescriptor(rec models.FixtureRecord) (fixture.Descriptor, error) {
	var channels map[state.Role]uint16
	if err := json.Unmarshal([]byte(rec.ChannelsJSON), &channels); err != nil {
		return fixture.Descriptor{}, fmt.Errorf("decode channels: %w", err)
	}
	return fixture.Descriptor{
		Name:               rec.Name,
		Universe:           uint16(rec.Universe),
		BaseAddress:        uint16(rec.BaseAddress),
		Channels:           channels,
		FixtureType:        rec.FixtureType,
		MaxStrobeFrequency: rec.MaxStrobeFrequency,
	}, nil
}
