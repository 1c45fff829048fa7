package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/chromaworks/lumen-engine/internal/database/models"
	"github.com/chromaworks/lumen-engine/internal/lighting/effect"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB holds the test database.
type testDB struct {
	DB *gorm.DB
}

// setupTestDB creates an in-memory SQLite database for testing repositories.
func setupTestDB(t *testing.T) (*testDB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.FixtureRecord{},
		&models.EffectPreset{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	return &testDB{DB: db}, cleanup
}

func testDescriptor(name string) fixture.Descriptor {
	return fixture.Descriptor{
		Name:        name,
		Universe:    1,
		BaseAddress: 1,
		Channels: map[state.Role]uint16{
			state.RoleDimmer: 1,
			state.RoleRed:    2,
			state.RoleGreen:  3,
			state.RoleBlue:   4,
		},
		FixtureType:        "par",
		MaxStrobeFrequency: 20,
	}
}

func TestFixtureRepository_CRUD(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewFixtureRepository(testDB.DB)
	ctx := context.Background()

	d := testDescriptor("Fixture " + cuid.Slug())
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert (create) failed: %v", err)
	}

	found, err := repo.FindByName(ctx, d.Name)
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected to find fixture")
	}
	if found.Universe != d.Universe || found.BaseAddress != d.BaseAddress {
		t.Errorf("field mismatch: got %+v, want %+v", found, d)
	}
	if found.Channels[state.RoleRed] != 2 {
		t.Errorf("channel mismatch: got %d, want 2", found.Channels[state.RoleRed])
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) == 0 {
		t.Error("Expected at least one fixture")
	}

	d.BaseAddress = 50
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert (update) failed: %v", err)
	}
	found, _ = repo.FindByName(ctx, d.Name)
	if found.BaseAddress != 50 {
		t.Errorf("Update didn't persist: got %d", found.BaseAddress)
	}

	if err := repo.Delete(ctx, d.Name); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	found, err = repo.FindByName(ctx, d.Name)
	if err != nil {
		t.Fatalf("FindByName after delete failed: %v", err)
	}
	if found != nil {
		t.Error("Expected fixture to be deleted")
	}
}

func TestFixtureRepository_FindByName_NotFound(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewFixtureRepository(testDB.DB)
	ctx := context.Background()

	found, err := repo.FindByName(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if found != nil {
		t.Error("Expected nil for non-existent fixture")
	}
}

func TestNewFixtureRepository(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewFixtureRepository(testDB.DB)
	if repo == nil {
		t.Error("Expected non-nil repository")
	}
}

func testInstance(targets ...string) *effect.Instance {
	down := 500 * time.Millisecond
	return &effect.Instance{
		Params: effect.StaticParams{Values: map[state.Role]float64{
			state.RoleRed: 1, state.RoleGreen: 0.5,
		}},
		Targets:  targets,
		Layer:    state.Midground,
		Blend:    state.Replace,
		Priority: 10,
		Envelope: effect.Envelope{Up: 200 * time.Millisecond, Hold: time.Second, Down: &down},
	}
}

func TestPresetRepository_CRUD(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPresetRepository(testDB.DB)
	ctx := context.Background()

	name := "Preset " + cuid.Slug()
	inst := testInstance("fixture-a", "fixture-b")

	if err := repo.Upsert(ctx, name, inst); err != nil {
		t.Fatalf("Upsert (create) failed: %v", err)
	}

	row, err := repo.FindByName(ctx, name)
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if row == nil {
		t.Fatal("Expected to find preset")
	}
	if row.Type != string(effect.TypeStatic) {
		t.Errorf("Type mismatch: got %s", row.Type)
	}
	if row.EnvelopeDownMs == nil || *row.EnvelopeDownMs != 500 {
		t.Errorf("EnvelopeDownMs mismatch: got %v", row.EnvelopeDownMs)
	}

	rebuilt, err := ToInstance(*row, "new-instance-id")
	if err != nil {
		t.Fatalf("ToInstance failed: %v", err)
	}
	if rebuilt.ID != "new-instance-id" {
		t.Errorf("ID mismatch: got %s", rebuilt.ID)
	}
	if len(rebuilt.Targets) != 2 || rebuilt.Targets[0] != "fixture-a" {
		t.Errorf("Targets mismatch: got %v", rebuilt.Targets)
	}
	if rebuilt.Envelope.Indefinite() {
		t.Error("expected a defined envelope after round-trip")
	}
	params, ok := rebuilt.Params.(effect.StaticParams)
	if !ok {
		t.Fatalf("expected StaticParams, got %T", rebuilt.Params)
	}
	if params.Values[state.RoleRed] != 1 {
		t.Errorf("param value mismatch: got %v", params.Values[state.RoleRed])
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) == 0 {
		t.Error("Expected at least one preset")
	}

	inst2 := testInstance("fixture-c")
	inst2.Envelope = effect.Envelope{Up: time.Second, Hold: time.Second}
	if err := repo.Upsert(ctx, name, inst2); err != nil {
		t.Fatalf("Upsert (update) failed: %v", err)
	}
	row, _ = repo.FindByName(ctx, name)
	if row.EnvelopeDownMs != nil {
		t.Error("expected indefinite envelope to persist as nil EnvelopeDownMs")
	}
	if row.TargetsCSV != "fixture-c" {
		t.Errorf("Targets didn't update: got %s", row.TargetsCSV)
	}

	if err := repo.Delete(ctx, name); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	row, _ = repo.FindByName(ctx, name)
	if row != nil {
		t.Error("Expected preset to be deleted")
	}
}

func TestPresetRepository_FindByName_NotFound(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPresetRepository(testDB.DB)
	ctx := context.Background()

	row, err := repo.FindByName(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if row != nil {
		t.Error("Expected nil for non-existent preset")
	}
}

func TestNewPresetRepository(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPresetRepository(testDB.DB)
	if repo == nil {
		t.Error("Expected non-nil repository")
	}
}

func TestSettingRepository_CRUD(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSettingRepository(testDB.DB)
	ctx := context.Background()

	testKey := "test_key_" + cuid.Slug()

	found, err := repo.FindByKey(ctx, testKey)
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if found != nil {
		t.Error("Expected nil for non-existent setting")
	}

	setting, err := repo.Upsert(ctx, testKey, "test_value")
	if err != nil {
		t.Fatalf("Upsert (create) failed: %v", err)
	}
	if setting.ID == "" {
		t.Error("Expected setting ID to be set")
	}
	if setting.Key != testKey {
		t.Errorf("Key mismatch: got %s, want %s", setting.Key, testKey)
	}
	if setting.Value != "test_value" {
		t.Errorf("Value mismatch: got %s, want test_value", setting.Value)
	}

	updated, err := repo.Upsert(ctx, testKey, "updated_value")
	if err != nil {
		t.Fatalf("Upsert (update) failed: %v", err)
	}
	if updated.ID != setting.ID {
		t.Error("Expected same ID after update")
	}
	if updated.Value != "updated_value" {
		t.Errorf("Value mismatch after update: got %s", updated.Value)
	}

	found, err = repo.FindByKey(ctx, testKey)
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected to find setting")
	}
	if found.Value != "updated_value" {
		t.Errorf("Value mismatch: got %s", found.Value)
	}

	settings, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(settings) == 0 {
		t.Error("Expected at least one setting")
	}

	if err := repo.Delete(ctx, testKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	found, _ = repo.FindByKey(ctx, testKey)
	if found != nil {
		t.Error("Expected setting to be deleted")
	}
}

func TestNewSettingRepository(t *testing.T) {
	testDB, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSettingRepository(testDB.DB)
	if repo == nil {
		t.Error("Expected non-nil repository")
	}
}
