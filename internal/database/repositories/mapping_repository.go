package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// MappingRepository handles channel mapping table access.
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// FindAll returns all mapping tables with rules.
func (r *MappingRepository) FindAll(ctx context.Context) ([]models.MappingTable, error) {
	var tables []models.MappingTable
	result := r.db.WithContext(ctx).Preload("Rules").Order("id").Find(&tables)
	return tables, result.Error
}

// FindEnabled returns the single enabled mapping table, or nil.
func (r *MappingRepository) FindEnabled(ctx context.Context) (*models.MappingTable, error) {
	var table models.MappingTable
	result := r.db.WithContext(ctx).Preload("Rules").First(&table, "enabled = ?", true)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &table, nil
}

// Create creates a mapping table with its rules.
func (r *MappingRepository) Create(ctx context.Context, table *models.MappingTable) error {
	return r.db.WithContext(ctx).Create(table).Error
}

// SetEnabled enables one table and disables every other, preserving the
// at-most-one-enabled invariant.
func (r *MappingRepository) SetEnabled(ctx context.Context, id int, enabled bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if enabled {
			if err := tx.Model(&models.MappingTable{}).
				Where("id <> ?", id).
				Update("enabled", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.MappingTable{}).
			Where("id = ?", id).
			Update("enabled", enabled).Error
	})
}

// Delete deletes a mapping table and its rules.
func (r *MappingRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.MappingRule{}, "table_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.MappingTable{}, "id = ?", id).Error
	})
}
