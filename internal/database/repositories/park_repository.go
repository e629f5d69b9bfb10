package repositories

import (
	"context"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"gorm.io/gorm"
)

// ParkRepository persists parked channels across restarts.
type ParkRepository struct {
	db *gorm.DB
}

// NewParkRepository creates a new ParkRepository.
func NewParkRepository(db *gorm.DB) *ParkRepository {
	return &ParkRepository{db: db}
}

// FindAll returns all parked channels.
func (r *ParkRepository) FindAll(ctx context.Context) ([]models.ParkedChannel, error) {
	var parks []models.ParkedChannel
	result := r.db.WithContext(ctx).Order("universe_id, channel").Find(&parks)
	return parks, result.Error
}

// Park records a parked channel, replacing any existing park on the
// same universe and channel.
func (r *ParkRepository) Park(ctx context.Context, park *models.ParkedChannel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.ParkedChannel{},
			"universe_id = ? AND channel = ?", park.UniverseID, park.Channel).Error; err != nil {
			return err
		}
		return tx.Create(park).Error
	})
}

// Unpark removes the park on a channel if present.
func (r *ParkRepository) Unpark(ctx context.Context, universeID, channel int) error {
	return r.db.WithContext(ctx).Delete(&models.ParkedChannel{},
		"universe_id = ? AND channel = ?", universeID, channel).Error
}

// UnparkUniverse removes every park in a universe.
func (r *ParkRepository) UnparkUniverse(ctx context.Context, universeID int) error {
	return r.db.WithContext(ctx).Delete(&models.ParkedChannel{}, "universe_id = ?", universeID).Error
}
