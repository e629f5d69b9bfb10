package repositories

import (
	"context"
	"encoding/json"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// ProfileRepository handles access profile data.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindAll returns all access profiles.
func (r *ProfileRepository) FindAll(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	result := r.db.WithContext(ctx).Order("id").Find(&profiles)
	return profiles, result.Error
}

// FindByName returns a profile by name, or nil.
func (r *ProfileRepository) FindByName(ctx context.Context, name string) (*models.Profile, error) {
	var profile models.Profile
	result := r.db.WithContext(ctx).First(&profile, "name = ?", name)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &profile, nil
}

// Create creates a profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// Update updates a profile.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// Delete deletes a profile.
func (r *ProfileRepository) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Delete(&models.Profile{}, "id = ?", id).Error
}

// StringList decodes a JSON string array column. Empty input yields nil.
func StringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

// IntList decodes a JSON int array column. Empty input yields nil.
func IntList(raw string) []int {
	if raw == "" {
		return nil
	}
	var list []int
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
