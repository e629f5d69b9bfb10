package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// FixtureRepository handles fixture profile and patch data access.
type FixtureRepository struct {
	db *gorm.DB
}

// NewFixtureRepository creates a new FixtureRepository.
func NewFixtureRepository(db *gorm.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// FindAll returns all fixture profiles.
func (r *FixtureRepository) FindAll(ctx context.Context) ([]models.Fixture, error) {
	var fixtures []models.Fixture
	result := r.db.WithContext(ctx).Order("name").Find(&fixtures)
	return fixtures, result.Error
}

// FindByID returns a fixture by id, or nil if absent.
func (r *FixtureRepository) FindByID(ctx context.Context, id int) (*models.Fixture, error) {
	var fixture models.Fixture
	result := r.db.WithContext(ctx).First(&fixture, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &fixture, nil
}

// Create creates a new fixture profile.
func (r *FixtureRepository) Create(ctx context.Context, fixture *models.Fixture) error {
	return r.db.WithContext(ctx).Create(fixture).Error
}

// Update updates an existing fixture profile.
func (r *FixtureRepository) Update(ctx context.Context, fixture *models.Fixture) error {
	return r.db.WithContext(ctx).Save(fixture).Error
}

// Delete deletes a fixture and its patches.
func (r *FixtureRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Patch{}, "fixture_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Fixture{}, "id = ?", id).Error
	})
}

// ChannelCount returns the channel footprint of a fixture from its
// definition. Definitions without a channel list count as one channel.
func ChannelCount(fixture *models.Fixture) int {
	var def struct {
		Channels []struct {
			Role string `json:"role"`
		} `json:"channels"`
	}
	if err := json.Unmarshal([]byte(fixture.DefinitionJSON), &def); err != nil || len(def.Channels) == 0 {
		return 1
	}
	return len(def.Channels)
}

// FindPatches returns all patches with their fixtures.
func (r *FixtureRepository) FindPatches(ctx context.Context) ([]models.Patch, error) {
	var patches []models.Patch
	result := r.db.WithContext(ctx).Preload("Fixture").Order("universe_id, start_channel").Find(&patches)
	return patches, result.Error
}

// CreatePatch creates a patch after checking the channel-range overlap
// invariant: no two patches may overlap in the same universe.
func (r *FixtureRepository) CreatePatch(ctx context.Context, patch *models.Patch) error {
	fixture, err := r.FindByID(ctx, patch.FixtureID)
	if err != nil {
		return err
	}
	if fixture == nil {
		return fmt.Errorf("fixture %d not found", patch.FixtureID)
	}
	width := ChannelCount(fixture)
	if patch.StartChannel < 1 || patch.StartChannel+width-1 > 512 {
		return fmt.Errorf("patch at channel %d exceeds universe bounds", patch.StartChannel)
	}

	existing, err := r.FindPatches(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.UniverseID != patch.UniverseID || other.ID == patch.ID {
			continue
		}
		otherWidth := 1
		if other.Fixture != nil {
			otherWidth = ChannelCount(other.Fixture)
		}
		if patch.StartChannel <= other.StartChannel+otherWidth-1 &&
			other.StartChannel <= patch.StartChannel+width-1 {
			return fmt.Errorf("patch overlaps existing patch %d in universe %d", other.ID, other.UniverseID)
		}
	}

	return r.db.WithContext(ctx).Create(patch).Error
}

// DeletePatch removes a patch.
func (r *FixtureRepository) DeletePatch(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Delete(&models.Patch{}, "id = ?", id).Error
}
