package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmxx/dmxx-go/internal/api"
	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/internal/services/scene"
	"github.com/dmxx/dmxx-go/internal/services/testutil"
)

type apiFixture struct {
	router  chi.Router
	eng     *engine.Engine
	authSvc *auth.Service
	db      *testutil.TestDB
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	require.NoError(t, db.UniverseRepo.Create(ctx, &models.Universe{ID: 1, Label: "Stage"}))

	eng, err := engine.NewEngine(engine.Config{FrameRateHz: 44}, &engine.Snapshot{})
	require.NoError(t, err)

	sceneService := scene.NewService(eng, db.SceneRepo)
	authSvc := auth.NewService("test-secret", "admin-pass", nil, db.ProfileRepo)

	server := api.New(api.Deps{
		Engine:       eng,
		Scenes:       sceneService,
		Auth:         authSvc,
		UniverseRepo: db.UniverseRepo,
		FixtureRepo:  db.FixtureRepo,
		SceneRepo:    db.SceneRepo,
		GroupRepo:    db.GroupRepo,
		MappingRepo:  db.MappingRepo,
		ParkRepo:     db.ParkRepo,
		ProfileRepo:  db.ProfileRepo,
		SettingRepo:  db.SettingRepo,
	})
	require.NoError(t, server.ApplyConfig(ctx))

	eng.Start()
	t.Cleanup(eng.Stop)
	t.Cleanup(sceneService.Stop)

	token, err := authSvc.CreateToken(nil)
	require.NoError(t, err)

	return &apiFixture{
		router:  server.Router(),
		eng:     eng,
		authSvc: authSvc,
		db:      db,
		token:   token,
	}
}

func (f *apiFixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func (f *apiFixture) admin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	return f.request(t, method, path, f.token, body)
}

func TestLoginAndStatus(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "admin-pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		Token   string `json:"token"`
		Profile string `json:"profile"`
		IsAdmin bool   `json:"is_admin"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)
	assert.True(t, login.IsAdmin)

	rec = f.request(t, http.MethodGet, "/auth/status", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var identity auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.True(t, identity.IsAdmin)
	assert.Equal(t, "token", identity.Method)
}

func TestRequestsRejectedWithoutToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/universes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUniverseCreateRebuildsEngine(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/universes", map[string]interface{}{
		"id":               2,
		"label":            "FOH",
		"passthrough_mode": "faders_output",
		"merge_mode":       "htp",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Eventually(t, func() bool {
		_, ok := f.eng.Snapshot(2)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.admin(t, http.MethodDelete, "/universes/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		_, ok := f.eng.Snapshot(2)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUniverseRejectsBadPassthroughMode(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/universes", map[string]interface{}{
		"id":               3,
		"passthrough_mode": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchOverlapRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/fixtures", map[string]interface{}{
		"name":       "RGBW Par",
		"definition": map[string]interface{}{"channels": []map[string]string{{"role": "r"}, {"role": "g"}, {"role": "b"}, {"role": "w"}}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var fixture struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fixture))

	rec = f.admin(t, http.MethodPost, "/patch", map[string]interface{}{
		"fixture_id": fixture.ID, "universe_id": 1, "start_channel": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.admin(t, http.MethodPost, "/patch", map[string]interface{}{
		"fixture_id": fixture.ID, "universe_id": 1, "start_channel": 4,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.admin(t, http.MethodPost, "/patch", map[string]interface{}{
		"fixture_id": fixture.ID, "universe_id": 1, "start_channel": 5,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func channelValue(f *apiFixture, universeID, channel int) byte {
	snap, ok := f.eng.Snapshot(universeID)
	if !ok {
		return 0
	}
	return snap.Values[channel-1]
}

func TestSceneCaptureAndRecall(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/dmx/set", map[string]interface{}{
		"universe_id": 1,
		"values":      map[string]int{"1": 200, "2": 90},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return channelValue(f, 1, 1) == 200
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.admin(t, http.MethodPost, "/scenes", map[string]interface{}{
		"name": "Look 1", "transition_type": "instant", "universe_ids": []int{1},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var captured struct {
		ID           int `json:"id"`
		ChannelCount int `json:"channel_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &captured))
	assert.Equal(t, 2, captured.ChannelCount)

	// Clear the look, then recall it.
	rec = f.admin(t, http.MethodPost, "/dmx/set", map[string]interface{}{
		"universe_id": 1,
		"values":      map[string]int{"1": 0, "2": 0},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return channelValue(f, 1, 1) == 0
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.admin(t, http.MethodPost, fmt.Sprintf("/scenes/%d/recall", captured.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return channelValue(f, 1, 1) == 200 && channelValue(f, 1, 2) == 90
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.admin(t, http.MethodPost, "/scenes/9999/recall", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupCycleRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/groups/grids", map[string]interface{}{"name": "Main"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var grid struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))

	rec = f.admin(t, http.MethodPost, "/groups", map[string]interface{}{
		"name": "A", "grid_id": grid.ID,
		"members": []map[string]interface{}{{"universe_id": 1, "channel": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var groupA struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groupA))

	rec = f.admin(t, http.MethodPost, "/groups", map[string]interface{}{
		"name": "B", "grid_id": grid.ID,
		"members": []map[string]interface{}{{"virtual_target": "group", "target_group_id": groupA.ID}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var groupB struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groupB))

	// Closing the loop A -> B -> A must be rejected before persisting.
	rec = f.admin(t, http.MethodPut, fmt.Sprintf("/groups/%d", groupA.ID), map[string]interface{}{
		"name": "A",
		"members": []map[string]interface{}{
			{"virtual_target": "group", "target_group_id": groupB.ID},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The stored group is unchanged.
	group, err := f.db.GroupRepo.FindByID(context.Background(), groupA.ID)
	require.NoError(t, err)
	require.NotNil(t, group)
	require.Len(t, group.Members, 1)
	assert.Equal(t, 1, group.Members[0].Channel)
}

func TestParkEndpointPersistsAndAppliesValue(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/dmx/park", map[string]interface{}{
		"universe_id": 1, "channel": 7, "value": 150,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return channelValue(f, 1, 7) == 150
	}, 2*time.Second, 10*time.Millisecond)

	parks, err := f.db.ParkRepo.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, parks, 1)
	assert.Equal(t, 150, parks[0].Value)

	rec = f.admin(t, http.MethodPost, "/dmx/unpark", map[string]interface{}{
		"universe_id": 1, "channel": 7,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	parks, err = f.db.ParkRepo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, parks)
}

func TestPageGateForbidsRestrictedProfile(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	password := "faders-only"
	profile := &models.Profile{
		Name:             testutil.UniqueName("op"),
		Password:         &password,
		AllowedPagesJSON: `["faders"]`,
		CanPark:          true,
	}
	require.NoError(t, f.db.ProfileRepo.Create(ctx, profile))
	token, err := f.authSvc.CreateToken(profile)
	require.NoError(t, err)

	// Reads stay open, io mutations are gated.
	rec := f.request(t, http.MethodGet, "/universes", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPost, "/universes", token, map[string]interface{}{"id": 9})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodPost, "/scenes", token, map[string]interface{}{"name": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMappingEnableSwapsActiveTable(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPost, "/mapping", map[string]interface{}{
		"name": "Console remap",
		"rules": []map[string]interface{}{
			{"src_universe": 1, "src_channel": 1, "dst_kind": "channel", "dst_universe": 1, "dst_channel": 10},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var table struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))

	rec = f.admin(t, http.MethodPut, fmt.Sprintf("/mapping/%d/enable", table.ID), map[string]interface{}{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)

	enabled, err := f.db.MappingRepo.FindEnabled(context.Background())
	require.NoError(t, err)
	require.NotNil(t, enabled)
	assert.Equal(t, table.ID, enabled.ID)

	rec = f.admin(t, http.MethodPost, "/mapping", map[string]interface{}{
		"name":  "Bad rule",
		"rules": []map[string]interface{}{{"src_universe": 1, "src_channel": 600, "dst_kind": "channel", "dst_channel": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.admin(t, http.MethodPut, "/settings", map[string]string{"key": "theme", "value": "dark"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.admin(t, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var settings map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "dark", settings["theme"])
}
