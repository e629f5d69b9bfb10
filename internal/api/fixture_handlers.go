package api

import (
	"encoding/json"
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
	"github.com/dmxx/dmxx-go/internal/protocol"
)

type fixtureView struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Definition   json.RawMessage `json:"definition,omitempty"`
	ChannelCount int             `json:"channel_count"`
}

func fixtureToView(f *models.Fixture) fixtureView {
	view := fixtureView{
		ID:           f.ID,
		Name:         f.Name,
		Manufacturer: f.Manufacturer,
		ChannelCount: repositories.ChannelCount(f),
	}
	if f.DefinitionJSON != "" {
		view.Definition = json.RawMessage(f.DefinitionJSON)
	}
	return view
}

func (s *Server) handleListFixtures(w http.ResponseWriter, r *http.Request) {
	fixtures, err := s.fixtureRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load fixtures")
		return
	}
	views := make([]fixtureView, 0, len(fixtures))
	for i := range fixtures {
		views = append(views, fixtureToView(&fixtures[i]))
	}
	respond(w, http.StatusOK, views)
}

type fixtureRequest struct {
	Name         string          `json:"name"`
	Manufacturer string          `json:"manufacturer"`
	Definition   json.RawMessage `json:"definition"`
}

func (s *Server) handleCreateFixture(w http.ResponseWriter, r *http.Request) {
	var req fixtureRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "fixture name required")
		return
	}
	if len(req.Definition) > 0 && !json.Valid(req.Definition) {
		respondError(w, http.StatusBadRequest, "invalid fixture definition")
		return
	}

	fixture := models.Fixture{
		Name:           req.Name,
		Manufacturer:   req.Manufacturer,
		DefinitionJSON: string(req.Definition),
	}
	if err := s.fixtureRepo.Create(r.Context(), &fixture); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create fixture")
		return
	}
	s.broadcast(protocol.EventFixturesChanged, nil)
	respond(w, http.StatusCreated, fixtureToView(&fixture))
}

func (s *Server) handleUpdateFixture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fixture id")
		return
	}
	fixture, err := s.fixtureRepo.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load fixture")
		return
	}
	if fixture == nil {
		respondError(w, http.StatusNotFound, "fixture not found")
		return
	}

	var req fixtureRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if len(req.Definition) > 0 && !json.Valid(req.Definition) {
		respondError(w, http.StatusBadRequest, "invalid fixture definition")
		return
	}

	if req.Name != "" {
		fixture.Name = req.Name
	}
	fixture.Manufacturer = req.Manufacturer
	if len(req.Definition) > 0 {
		fixture.DefinitionJSON = string(req.Definition)
	}
	if err := s.fixtureRepo.Update(r.Context(), fixture); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update fixture")
		return
	}
	s.broadcast(protocol.EventFixturesChanged, nil)
	respond(w, http.StatusOK, fixtureToView(fixture))
}

func (s *Server) handleDeleteFixture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fixture id")
		return
	}
	if err := s.fixtureRepo.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcast(protocol.EventFixturesChanged, nil)
	respond(w, http.StatusOK, nil)
}

type patchView struct {
	ID           int    `json:"id"`
	FixtureID    int    `json:"fixture_id"`
	FixtureName  string `json:"fixture_name,omitempty"`
	UniverseID   int    `json:"universe_id"`
	StartChannel int    `json:"start_channel"`
	ChannelCount int    `json:"channel_count"`
	Label        string `json:"label,omitempty"`
	GroupColor   string `json:"group_color,omitempty"`
}

func (s *Server) handleListPatches(w http.ResponseWriter, r *http.Request) {
	patches, err := s.fixtureRepo.FindPatches(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load patches")
		return
	}
	views := make([]patchView, 0, len(patches))
	for _, p := range patches {
		view := patchView{
			ID:           p.ID,
			FixtureID:    p.FixtureID,
			UniverseID:   p.UniverseID,
			StartChannel: p.StartChannel,
			Label:        p.Label,
			GroupColor:   p.GroupColor,
		}
		if p.Fixture != nil {
			view.FixtureName = p.Fixture.Name
			view.ChannelCount = repositories.ChannelCount(p.Fixture)
		}
		views = append(views, view)
	}
	respond(w, http.StatusOK, views)
}

type patchRequest struct {
	FixtureID    int    `json:"fixture_id"`
	UniverseID   int    `json:"universe_id"`
	StartChannel int    `json:"start_channel"`
	Label        string `json:"label"`
	GroupColor   string `json:"group_color"`
}

// handleCreatePatch places a fixture. Overlap and bounds are enforced at
// the repository so concurrent patchers cannot race past the check.
func (s *Server) handleCreatePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}

	patch := models.Patch{
		FixtureID:    req.FixtureID,
		UniverseID:   req.UniverseID,
		StartChannel: req.StartChannel,
		Label:        req.Label,
		GroupColor:   req.GroupColor,
	}
	if err := s.fixtureRepo.CreatePatch(r.Context(), &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcast(protocol.EventPatchesChanged, nil)
	respond(w, http.StatusCreated, patchView{
		ID:           patch.ID,
		FixtureID:    patch.FixtureID,
		UniverseID:   patch.UniverseID,
		StartChannel: patch.StartChannel,
		Label:        patch.Label,
		GroupColor:   patch.GroupColor,
	})
}

func (s *Server) handleDeletePatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid patch id")
		return
	}
	if err := s.fixtureRepo.DeletePatch(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete patch")
		return
	}
	s.broadcast(protocol.EventPatchesChanged, nil)
	respond(w, http.StatusOK, nil)
}
