package api

import (
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
)

type sceneView struct {
	ID                      int    `json:"id"`
	Name                    string `json:"name"`
	TransitionType          string `json:"transition_type"`
	DurationMs              int    `json:"duration_ms"`
	IncludesGlobalMaster    bool   `json:"includes_global_master"`
	IncludesUniverseMasters bool   `json:"includes_universe_masters"`
	ChannelCount            int    `json:"channel_count"`
	GroupCount              int    `json:"group_count"`
}

func sceneToView(scene *models.Scene) sceneView {
	return sceneView{
		ID:                      scene.ID,
		Name:                    scene.Name,
		TransitionType:          scene.TransitionType,
		DurationMs:              scene.DurationMs,
		IncludesGlobalMaster:    scene.IncludesGlobalMaster,
		IncludesUniverseMasters: scene.IncludesUniverseMasters,
		ChannelCount:            len(scene.Values),
		GroupCount:              len(scene.GroupValues),
	}
}

func validTransition(transition string) bool {
	switch transition {
	case "", "instant", "fade", "crossfade":
		return true
	}
	return false
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.sceneRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load scenes")
		return
	}
	identity := identityFrom(r.Context())
	views := make([]sceneView, 0, len(scenes))
	for i := range scenes {
		if !identity.CanAccessScene(scenes[i].ID) {
			continue
		}
		views = append(views, sceneToView(&scenes[i]))
	}
	respond(w, http.StatusOK, views)
}

type captureRequest struct {
	Name                    string `json:"name"`
	TransitionType          string `json:"transition_type"`
	DurationMs              int    `json:"duration_ms"`
	UniverseIDs             []int  `json:"universe_ids"`
	GroupIDs                []int  `json:"group_ids"`
	IncludesGlobalMaster    bool   `json:"includes_global_master"`
	IncludesUniverseMasters bool   `json:"includes_universe_masters"`
}

// handleCaptureScene snapshots the current operator layer into a new
// scene. Capturing pre-grandmaster keeps save-then-recall a no-op.
func (s *Server) handleCaptureScene(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "scene name required")
		return
	}
	if !validTransition(req.TransitionType) {
		respondError(w, http.StatusBadRequest, "invalid transition type")
		return
	}

	scene := models.Scene{
		Name:                    req.Name,
		TransitionType:          req.TransitionType,
		DurationMs:              req.DurationMs,
		IncludesGlobalMaster:    req.IncludesGlobalMaster,
		IncludesUniverseMasters: req.IncludesUniverseMasters,
	}
	if scene.TransitionType == "" {
		scene.TransitionType = "instant"
	}
	if err := s.scenes.Capture(r.Context(), &scene, req.UniverseIDs, req.GroupIDs); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to capture scene")
		return
	}
	s.broadcast(protocol.EventScenesChanged, nil)
	respond(w, http.StatusCreated, sceneToView(&scene))
}

type sceneUpdateRequest struct {
	Name                    string `json:"name"`
	TransitionType          string `json:"transition_type"`
	DurationMs              *int   `json:"duration_ms"`
	Recapture               bool   `json:"recapture"`
	UniverseIDs             []int  `json:"universe_ids"`
	GroupIDs                []int  `json:"group_ids"`
	IncludesGlobalMaster    *bool  `json:"includes_global_master"`
	IncludesUniverseMasters *bool  `json:"includes_universe_masters"`
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scene id")
		return
	}
	scene, err := s.sceneRepo.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load scene")
		return
	}
	if scene == nil {
		respondError(w, http.StatusNotFound, "scene not found")
		return
	}

	var req sceneUpdateRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if !validTransition(req.TransitionType) {
		respondError(w, http.StatusBadRequest, "invalid transition type")
		return
	}

	if req.Name != "" {
		scene.Name = req.Name
	}
	if req.TransitionType != "" {
		scene.TransitionType = req.TransitionType
	}
	if req.DurationMs != nil {
		scene.DurationMs = *req.DurationMs
	}
	if req.IncludesGlobalMaster != nil {
		scene.IncludesGlobalMaster = *req.IncludesGlobalMaster
	}
	if req.IncludesUniverseMasters != nil {
		scene.IncludesUniverseMasters = *req.IncludesUniverseMasters
	}

	if req.Recapture {
		if err := s.scenes.Capture(r.Context(), scene, req.UniverseIDs, req.GroupIDs); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to recapture scene")
			return
		}
	} else if err := s.sceneRepo.Update(r.Context(), scene); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update scene")
		return
	}
	s.broadcast(protocol.EventScenesChanged, nil)
	respond(w, http.StatusOK, sceneToView(scene))
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scene id")
		return
	}
	if err := s.sceneRepo.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete scene")
		return
	}
	s.broadcast(protocol.EventScenesChanged, nil)
	respond(w, http.StatusOK, nil)
}

type recallRequest struct {
	Transition string `json:"transition"`
	DurationMs *int   `json:"duration_ms"`
}

func (s *Server) handleRecallScene(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scene id")
		return
	}
	if !identityFrom(r.Context()).CanAccessScene(id) {
		respondError(w, http.StatusForbidden, "scene access denied")
		return
	}

	var req recallRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request")
			return
		}
	}
	if !validTransition(req.Transition) {
		respondError(w, http.StatusBadRequest, "invalid transition type")
		return
	}

	if err := s.scenes.Recall(r.Context(), id, req.Transition, req.DurationMs); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleReleaseScene(w http.ResponseWriter, r *http.Request) {
	s.scenes.Release()
	respond(w, http.StatusOK, nil)
}
