package api

import (
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/engine"
)

type memberView struct {
	UniverseID    int    `json:"universe_id,omitempty"`
	Channel       int    `json:"channel,omitempty"`
	VirtualTarget string `json:"virtual_target,omitempty"`
	TargetGroupID int    `json:"target_group_id,omitempty"`
}

type groupView struct {
	ID             int          `json:"id"`
	Name           string       `json:"name"`
	Mode           string       `json:"mode"`
	Enabled        bool         `json:"enabled"`
	Color          string       `json:"color,omitempty"`
	MasterUniverse *int         `json:"master_universe,omitempty"`
	MasterChannel  *int         `json:"master_channel,omitempty"`
	MasterValue    int          `json:"master_value"`
	GridID         int          `json:"grid_id"`
	Members        []memberView `json:"members"`
}

type gridView struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Color    string      `json:"color,omitempty"`
	Position int         `json:"position"`
	Groups   []groupView `json:"groups"`
}

func groupToView(g *models.Group, liveMaster int) groupView {
	view := groupView{
		ID:             g.ID,
		Name:           g.Name,
		Mode:           g.Mode,
		Enabled:        g.Enabled,
		Color:          g.Color,
		MasterUniverse: g.MasterUniverse,
		MasterChannel:  g.MasterChannel,
		MasterValue:    liveMaster,
		GridID:         g.GridID,
		Members:        make([]memberView, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		view.Members = append(view.Members, memberView{
			UniverseID:    m.UniverseID,
			Channel:       m.Channel,
			VirtualTarget: m.VirtualTarget,
			TargetGroupID: m.TargetGroupID,
		})
	}
	return view
}

// handleListGrids returns the grid tree with live group master values,
// filtered by the caller's grid restrictions.
func (s *Server) handleListGrids(w http.ResponseWriter, r *http.Request) {
	grids, err := s.groupRepo.FindGrids(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load grids")
		return
	}
	identity := identityFrom(r.Context())
	views := make([]gridView, 0, len(grids))
	for i := range grids {
		grid := &grids[i]
		if !identity.CanAccessGrid(grid.ID) {
			continue
		}
		view := gridView{
			ID:       grid.ID,
			Name:     grid.Name,
			Color:    grid.Color,
			Position: grid.Position,
			Groups:   make([]groupView, 0, len(grid.Groups)),
		}
		for j := range grid.Groups {
			g := &grid.Groups[j]
			view.Groups = append(view.Groups, groupToView(g, int(s.eng.GroupMaster(g.ID))))
		}
		views = append(views, view)
	}
	respond(w, http.StatusOK, views)
}

type groupRequest struct {
	Name           string       `json:"name"`
	Mode           string       `json:"mode"`
	Enabled        *bool        `json:"enabled"`
	Color          string       `json:"color"`
	MasterUniverse *int         `json:"master_universe"`
	MasterChannel  *int         `json:"master_channel"`
	GridID         int          `json:"grid_id"`
	Members        []memberView `json:"members"`
}

func (req *groupRequest) validate() string {
	switch req.Mode {
	case "", "master_scales", "master_sets", "master_latches":
	default:
		return "invalid group mode"
	}
	for _, m := range req.Members {
		switch m.VirtualTarget {
		case "", "global_master", "universe_master", "group":
		default:
			return "invalid member virtual target"
		}
		if m.VirtualTarget == "" && (m.Channel < 1 || m.Channel > 512) {
			return "member channel out of range"
		}
	}
	return ""
}

func (req *groupRequest) toModel(group *models.Group) {
	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Mode != "" {
		group.Mode = req.Mode
	}
	if req.Enabled != nil {
		group.Enabled = *req.Enabled
	}
	group.Color = req.Color
	group.MasterUniverse = req.MasterUniverse
	group.MasterChannel = req.MasterChannel
	if req.GridID != 0 {
		group.GridID = req.GridID
	}
	group.Members = make([]models.GroupMember, 0, len(req.Members))
	for _, m := range req.Members {
		group.Members = append(group.Members, models.GroupMember{
			GroupID:       group.ID,
			UniverseID:    m.UniverseID,
			Channel:       m.Channel,
			VirtualTarget: m.VirtualTarget,
			TargetGroupID: m.TargetGroupID,
		})
	}
}

// validateGroupGraph rejects a candidate group that would introduce a
// group-to-group cycle, before anything is persisted.
func (s *Server) validateGroupGraph(r *http.Request, candidate *models.Group) error {
	groups, err := s.groupRepo.FindAll(r.Context())
	if err != nil {
		return err
	}
	merged := make([]models.Group, 0, len(groups)+1)
	for _, g := range groups {
		if g.ID != candidate.ID {
			merged = append(merged, g)
		}
	}
	merged = append(merged, *candidate)
	return (&engine.Snapshot{Groups: buildSnapshot(nil, merged, nil).Groups}).Validate()
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	group := models.Group{Mode: "master_scales", Enabled: true}
	req.toModel(&group)

	if err := s.validateGroupGraph(r, &group); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.groupRepo.Create(r.Context(), &group); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventGroupsChanged, nil)
	respond(w, http.StatusCreated, groupToView(&group, group.MasterValue))
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	group, err := s.groupRepo.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}

	var req groupRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req.toModel(group)
	if err := s.validateGroupGraph(r, group); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.groupRepo.Update(r.Context(), group); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update group")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventGroupsChanged, nil)
	respond(w, http.StatusOK, groupToView(group, int(s.eng.GroupMaster(group.ID))))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if err := s.groupRepo.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete group")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventGroupsChanged, nil)
	respond(w, http.StatusOK, nil)
}

type gridRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

func (s *Server) handleCreateGrid(w http.ResponseWriter, r *http.Request) {
	var req gridRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "grid name required")
		return
	}
	grid := models.Grid{Name: req.Name, Color: req.Color, Position: req.Position}
	if err := s.groupRepo.CreateGrid(r.Context(), &grid); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create grid")
		return
	}
	s.broadcast(protocol.EventGroupsChanged, nil)
	respond(w, http.StatusCreated, gridView{ID: grid.ID, Name: grid.Name, Color: grid.Color, Position: grid.Position, Groups: []groupView{}})
}

func (s *Server) handleDeleteGrid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid grid id")
		return
	}
	if err := s.groupRepo.DeleteGrid(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete grid")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventGroupsChanged, nil)
	respond(w, http.StatusOK, nil)
}
