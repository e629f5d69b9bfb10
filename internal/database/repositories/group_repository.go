package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// GroupRepository handles grid and group data access.
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindGrids returns all grids with their groups and members.
func (r *GroupRepository) FindGrids(ctx context.Context) ([]models.Grid, error) {
	var grids []models.Grid
	result := r.db.WithContext(ctx).
		Preload("Groups.Members").
		Order("position").
		Find(&grids)
	return grids, result.Error
}

// FindAll returns all groups with members, ordered by id.
func (r *GroupRepository) FindAll(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	result := r.db.WithContext(ctx).Preload("Members").Order("id").Find(&groups)
	return groups, result.Error
}

// FindByID returns a group with members, or nil if absent.
func (r *GroupRepository) FindByID(ctx context.Context, id int) (*models.Group, error) {
	var group models.Group
	result := r.db.WithContext(ctx).Preload("Members").First(&group, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &group, nil
}

// Create creates a group with its members.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// Update replaces a group and its members.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMember{}, "group_id = ?", group.ID).Error; err != nil {
			return err
		}
		return tx.Save(group).Error
	})
}

// UpdateMasterValue persists a group's current master value.
func (r *GroupRepository) UpdateMasterValue(ctx context.Context, id, value int) error {
	return r.db.WithContext(ctx).Model(&models.Group{}).
		Where("id = ?", id).
		Update("master_value", value).Error
}

// Delete deletes a group and its members.
func (r *GroupRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMember{}, "group_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", id).Error
	})
}

// CreateGrid creates a grid.
func (r *GroupRepository) CreateGrid(ctx context.Context, grid *models.Grid) error {
	return r.db.WithContext(ctx).Create(grid).Error
}

// DeleteGrid deletes a grid and all groups it contains.
func (r *GroupRepository) DeleteGrid(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groups []models.Group
		if err := tx.Find(&groups, "grid_id = ?", id).Error; err != nil {
			return err
		}
		for _, group := range groups {
			if err := tx.Delete(&models.GroupMember{}, "group_id = ?", group.ID).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Group{}, "grid_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Grid{}, "id = ?", id).Error
	})
}
