// Package testutil provides shared test utilities for integration tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB           *gorm.DB
	UniverseRepo *repositories.UniverseRepository
	FixtureRepo  *repositories.FixtureRepository
	SceneRepo    *repositories.SceneRepository
	GroupRepo    *repositories.GroupRepository
	MappingRepo  *repositories.MappingRepository
	ParkRepo     *repositories.ParkRepository
	ProfileRepo  *repositories.ProfileRepository
	SettingRepo  *repositories.SettingRepository
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Universe{},
		&models.UniverseOutput{},
		&models.Fixture{},
		&models.Patch{},
		&models.Scene{},
		&models.SceneValue{},
		&models.SceneGroupValue{},
		&models.Grid{},
		&models.Group{},
		&models.GroupMember{},
		&models.MappingTable{},
		&models.MappingRule{},
		&models.ParkedChannel{},
		&models.Profile{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	testDB := &TestDB{
		DB:           db,
		UniverseRepo: repositories.NewUniverseRepository(db),
		FixtureRepo:  repositories.NewFixtureRepository(db),
		SceneRepo:    repositories.NewSceneRepository(db),
		GroupRepo:    repositories.NewGroupRepository(db),
		MappingRepo:  repositories.NewMappingRepository(db),
		ParkRepo:     repositories.NewParkRepository(db),
		ProfileRepo:  repositories.NewProfileRepository(db),
		SettingRepo:  repositories.NewSettingRepository(db),
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	return testDB, cleanup
}

// UniqueName generates a unique name for testing so tests don't
// conflict with each other.
func UniqueName(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}
