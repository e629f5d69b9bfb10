package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository handles key/value server settings.
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the value for a key, or the fallback when unset.
func (r *SettingRepository) Get(ctx context.Context, key, fallback string) (string, error) {
	var setting models.Setting
	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return fallback, nil
		}
		return fallback, result.Error
	}
	return setting.Value, nil
}

// Set stores a value under a key, inserting or updating as needed.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&setting).Error
}

// All returns every stored setting as a map.
func (r *SettingRepository) All(ctx context.Context) (map[string]string, error) {
	var settings []models.Setting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}
