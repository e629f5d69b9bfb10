package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// SceneRepository handles scene data access.
type SceneRepository struct {
	db *gorm.DB
}

// NewSceneRepository creates a new SceneRepository.
func NewSceneRepository(db *gorm.DB) *SceneRepository {
	return &SceneRepository{db: db}
}

// FindAll returns all scenes without captured values.
func (r *SceneRepository) FindAll(ctx context.Context) ([]models.Scene, error) {
	var scenes []models.Scene
	result := r.db.WithContext(ctx).Order("id").Find(&scenes)
	return scenes, result.Error
}

// FindByID returns a scene with its captured channel and group values.
func (r *SceneRepository) FindByID(ctx context.Context, id int) (*models.Scene, error) {
	var scene models.Scene
	result := r.db.WithContext(ctx).
		Preload("Values").
		Preload("GroupValues").
		First(&scene, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &scene, nil
}

// Create creates a new scene with its values.
func (r *SceneRepository) Create(ctx context.Context, scene *models.Scene) error {
	return r.db.WithContext(ctx).Create(scene).Error
}

// Update updates scene metadata without touching captured values.
func (r *SceneRepository) Update(ctx context.Context, scene *models.Scene) error {
	return r.db.WithContext(ctx).Omit("Values", "GroupValues").Save(scene).Error
}

// ReplaceValues replaces a scene's captured channel and group values.
func (r *SceneRepository) ReplaceValues(ctx context.Context, sceneID int, values []models.SceneValue, groupValues []models.SceneGroupValue) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.SceneValue{}, "scene_id = ?", sceneID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.SceneGroupValue{}, "scene_id = ?", sceneID).Error; err != nil {
			return err
		}
		if len(values) > 0 {
			if err := tx.Create(&values).Error; err != nil {
				return err
			}
		}
		if len(groupValues) > 0 {
			if err := tx.Create(&groupValues).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete deletes a scene and its values.
func (r *SceneRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.SceneValue{}, "scene_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.SceneGroupValue{}, "scene_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Scene{}, "id = ?", id).Error
	})
}
