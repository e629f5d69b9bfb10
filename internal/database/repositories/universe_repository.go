package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// UniverseRepository handles universe and output configuration access.
type UniverseRepository struct {
	db *gorm.DB
}

// NewUniverseRepository creates a new UniverseRepository.
func NewUniverseRepository(db *gorm.DB) *UniverseRepository {
	return &UniverseRepository{db: db}
}

// FindAll returns all universes with their outputs, ordered by id.
func (r *UniverseRepository) FindAll(ctx context.Context) ([]models.Universe, error) {
	var universes []models.Universe
	result := r.db.WithContext(ctx).
		Preload("Outputs", func(db *gorm.DB) *gorm.DB { return db.Order("priority") }).
		Order("id").
		Find(&universes)
	return universes, result.Error
}

// FindByID returns a universe by id, or nil if absent.
func (r *UniverseRepository) FindByID(ctx context.Context, id int) (*models.Universe, error) {
	var universe models.Universe
	result := r.db.WithContext(ctx).Preload("Outputs").First(&universe, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &universe, nil
}

// Create creates a new universe.
func (r *UniverseRepository) Create(ctx context.Context, universe *models.Universe) error {
	return r.db.WithContext(ctx).Create(universe).Error
}

// Update updates an existing universe.
func (r *UniverseRepository) Update(ctx context.Context, universe *models.Universe) error {
	return r.db.WithContext(ctx).Save(universe).Error
}

// Delete deletes a universe and its outputs.
func (r *UniverseRepository) Delete(ctx context.Context, id int) error {
	if err := r.db.WithContext(ctx).Delete(&models.UniverseOutput{}, "universe_id = ?", id).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.Universe{}, "id = ?", id).Error
}

// AddOutput adds an output configuration to a universe.
func (r *UniverseRepository) AddOutput(ctx context.Context, output *models.UniverseOutput) error {
	return r.db.WithContext(ctx).Create(output).Error
}

// DeleteOutput removes an output configuration.
func (r *UniverseRepository) DeleteOutput(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Delete(&models.UniverseOutput{}, "id = ?", id).Error
}
