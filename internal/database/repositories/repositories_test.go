package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/services/testutil"
)

func TestUniverseOutputs(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	universe := &models.Universe{Label: "Stage Left", MergeMode: "htp"}
	require.NoError(t, tdb.UniverseRepo.Create(ctx, universe))

	require.NoError(t, tdb.UniverseRepo.AddOutput(ctx, &models.UniverseOutput{
		UniverseID: universe.ID,
		Protocol:   "artnet",
		ConfigJSON: `{"host":"10.0.0.20","universe":0}`,
		Enabled:    true,
	}))
	require.NoError(t, tdb.UniverseRepo.AddOutput(ctx, &models.UniverseOutput{
		UniverseID: universe.ID,
		Protocol:   "sacn",
		ConfigJSON: `{"universe":1}`,
		Enabled:    true,
		Priority:   1,
	}))

	found, err := tdb.UniverseRepo.FindByID(ctx, universe.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, found.Outputs, 2)
	assert.Equal(t, "artnet", found.Outputs[0].Protocol)

	require.NoError(t, tdb.UniverseRepo.Delete(ctx, universe.ID))
	found, err = tdb.UniverseRepo.FindByID(ctx, universe.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPatchOverlapRejected(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	universe := &models.Universe{Label: "Main"}
	require.NoError(t, tdb.UniverseRepo.Create(ctx, universe))

	fixture := &models.Fixture{
		Name:           testutil.UniqueName("par"),
		DefinitionJSON: `{"channels":[{"role":"red"},{"role":"green"},{"role":"blue"},{"role":"dimmer"}]}`,
	}
	require.NoError(t, tdb.FixtureRepo.Create(ctx, fixture))

	require.NoError(t, tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   universe.ID,
		StartChannel: 1,
	}))

	// Channels 1-4 are taken, a patch at 4 overlaps.
	err := tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   universe.ID,
		StartChannel: 4,
	})
	assert.Error(t, err)

	// Channel 5 is free.
	require.NoError(t, tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   universe.ID,
		StartChannel: 5,
	}))

	// Same range in another universe is fine.
	other := &models.Universe{Label: "Other"}
	require.NoError(t, tdb.UniverseRepo.Create(ctx, other))
	require.NoError(t, tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   other.ID,
		StartChannel: 1,
	}))
}

func TestPatchBoundsRejected(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fixture := &models.Fixture{
		Name:           testutil.UniqueName("bar"),
		DefinitionJSON: `{"channels":[{"role":"a"},{"role":"b"},{"role":"c"}]}`,
	}
	require.NoError(t, tdb.FixtureRepo.Create(ctx, fixture))

	err := tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   1,
		StartChannel: 511, // 511+3-1 = 513 > 512
	})
	assert.Error(t, err)

	require.NoError(t, tdb.FixtureRepo.CreatePatch(ctx, &models.Patch{
		FixtureID:    fixture.ID,
		UniverseID:   1,
		StartChannel: 510,
	}))
}

func TestSceneReplaceValues(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	scene := &models.Scene{
		Name:           testutil.UniqueName("look"),
		TransitionType: "fade",
		DurationMs:     2000,
		Values: []models.SceneValue{
			{UniverseID: 1, Channel: 1, Value: 255},
			{UniverseID: 1, Channel: 2, Value: 128},
		},
	}
	require.NoError(t, tdb.SceneRepo.Create(ctx, scene))

	require.NoError(t, tdb.SceneRepo.ReplaceValues(ctx, scene.ID,
		[]models.SceneValue{{SceneID: scene.ID, UniverseID: 1, Channel: 3, Value: 64}},
		[]models.SceneGroupValue{{SceneID: scene.ID, GroupID: 7, MasterValue: 200}},
	))

	found, err := tdb.SceneRepo.FindByID(ctx, scene.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Values, 1)
	assert.Equal(t, 3, found.Values[0].Channel)
	require.Len(t, found.GroupValues, 1)
	assert.Equal(t, 200, found.GroupValues[0].MasterValue)

	require.NoError(t, tdb.SceneRepo.Delete(ctx, scene.ID))
	var count int64
	tdb.DB.Model(&models.SceneValue{}).Where("scene_id = ?", scene.ID).Count(&count)
	assert.Zero(t, count)
}

func TestMappingSingleEnabled(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := &models.MappingTable{Name: "desk-a", Enabled: true}
	second := &models.MappingTable{Name: "desk-b"}
	require.NoError(t, tdb.MappingRepo.Create(ctx, first))
	require.NoError(t, tdb.MappingRepo.Create(ctx, second))

	require.NoError(t, tdb.MappingRepo.SetEnabled(ctx, second.ID, true))

	enabled, err := tdb.MappingRepo.FindEnabled(ctx)
	require.NoError(t, err)
	require.NotNil(t, enabled)
	assert.Equal(t, second.ID, enabled.ID)

	tables, err := tdb.MappingRepo.FindAll(ctx)
	require.NoError(t, err)
	enabledCount := 0
	for _, table := range tables {
		if table.Enabled {
			enabledCount++
		}
	}
	assert.Equal(t, 1, enabledCount)

	require.NoError(t, tdb.MappingRepo.SetEnabled(ctx, second.ID, false))
	enabled, err = tdb.MappingRepo.FindEnabled(ctx)
	require.NoError(t, err)
	assert.Nil(t, enabled)
}

func TestParkReplacesExisting(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, tdb.ParkRepo.Park(ctx, &models.ParkedChannel{UniverseID: 1, Channel: 10, Value: 100}))
	require.NoError(t, tdb.ParkRepo.Park(ctx, &models.ParkedChannel{UniverseID: 1, Channel: 10, Value: 200}))

	parks, err := tdb.ParkRepo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, parks, 1)
	assert.Equal(t, 200, parks[0].Value)

	require.NoError(t, tdb.ParkRepo.Unpark(ctx, 1, 10))
	parks, err = tdb.ParkRepo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, parks)
}

func TestGridDeleteCascades(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	grid := &models.Grid{Name: "Front"}
	require.NoError(t, tdb.GroupRepo.CreateGrid(ctx, grid))

	group := &models.Group{
		Name:   testutil.UniqueName("wash"),
		Mode:   "master_scales",
		GridID: grid.ID,
		Members: []models.GroupMember{
			{UniverseID: 1, Channel: 1},
			{UniverseID: 1, Channel: 2},
		},
	}
	require.NoError(t, tdb.GroupRepo.Create(ctx, group))

	require.NoError(t, tdb.GroupRepo.DeleteGrid(ctx, grid.ID))

	groups, err := tdb.GroupRepo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	var members int64
	tdb.DB.Model(&models.GroupMember{}).Count(&members)
	assert.Zero(t, members)
}

func TestSettingUpsert(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	value, err := tdb.SettingRepo.Get(ctx, "sacn_cid", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)

	require.NoError(t, tdb.SettingRepo.Set(ctx, "sacn_cid", "abc"))
	require.NoError(t, tdb.SettingRepo.Set(ctx, "sacn_cid", "def"))

	value, err = tdb.SettingRepo.Get(ctx, "sacn_cid", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "def", value)
}

func TestProfileLookup(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	password := "operator-pass"
	require.NoError(t, tdb.ProfileRepo.Create(ctx, &models.Profile{
		Name:             "operator",
		Password:         &password,
		IPAddressesJSON:  `["192.168.1.*"]`,
		AllowedPagesJSON: `["faders","scenes"]`,
		CanPark:          true,
	}))

	found, err := tdb.ProfileRepo.FindByName(ctx, "operator")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.Password)
	assert.Equal(t, password, *found.Password)
	assert.Nil(t, found.AllowedGridsJSON)

	missing, err := tdb.ProfileRepo.FindByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
