package api

import (
	"encoding/json"
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/network"
)

type universeView struct {
	ID               int             `json:"id"`
	Label            string          `json:"label"`
	PassthroughMode  string          `json:"passthrough_mode"`
	MergeMode        string          `json:"merge_mode"`
	MasterFaderColor string          `json:"master_fader_color,omitempty"`
	InputType        string          `json:"input_type"`
	InputEnabled     bool            `json:"input_enabled"`
	InputConfig      json.RawMessage `json:"input_config,omitempty"`
	Outputs          []outputView    `json:"outputs"`
}

type outputView struct {
	ID       int             `json:"id"`
	Protocol string          `json:"protocol"`
	Config   json.RawMessage `json:"config,omitempty"`
	Enabled  bool            `json:"enabled"`
	Priority int             `json:"priority"`
}

type universeRequest struct {
	ID               int             `json:"id"`
	Label            string          `json:"label"`
	PassthroughMode  string          `json:"passthrough_mode"`
	MergeMode        string          `json:"merge_mode"`
	MasterFaderColor string          `json:"master_fader_color"`
	InputType        string          `json:"input_type"`
	InputEnabled     bool            `json:"input_enabled"`
	InputConfig      json.RawMessage `json:"input_config"`
}

func universeToView(u *models.Universe) universeView {
	view := universeView{
		ID:               u.ID,
		Label:            u.Label,
		PassthroughMode:  u.PassthroughMode,
		MergeMode:        u.MergeMode,
		MasterFaderColor: u.MasterFaderColor,
		InputType:        u.InputType,
		InputEnabled:     u.InputEnabled,
		Outputs:          make([]outputView, 0, len(u.Outputs)),
	}
	if u.InputConfigJSON != "" {
		view.InputConfig = json.RawMessage(u.InputConfigJSON)
	}
	for _, o := range u.Outputs {
		ov := outputView{ID: o.ID, Protocol: o.Protocol, Enabled: o.Enabled, Priority: o.Priority}
		if o.ConfigJSON != "" {
			ov.Config = json.RawMessage(o.ConfigJSON)
		}
		view.Outputs = append(view.Outputs, ov)
	}
	return view
}

func validUniverseRequest(req *universeRequest) string {
	switch req.PassthroughMode {
	case "", "off", "view_only", "faders_output", "output_only":
	default:
		return "invalid passthrough mode"
	}
	switch req.MergeMode {
	case "", "htp", "ltp":
	default:
		return "invalid merge mode"
	}
	switch req.InputType {
	case "", "none", "artnet", "sacn":
	default:
		return "invalid input type"
	}
	if len(req.InputConfig) > 0 && !json.Valid(req.InputConfig) {
		return "invalid input config"
	}
	return ""
}

func (s *Server) handleListUniverses(w http.ResponseWriter, r *http.Request) {
	universes, err := s.universeRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load universes")
		return
	}
	views := make([]universeView, 0, len(universes))
	for i := range universes {
		views = append(views, universeToView(&universes[i]))
	}
	respond(w, http.StatusOK, views)
}

func (s *Server) handleCreateUniverse(w http.ResponseWriter, r *http.Request) {
	var req universeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if msg := validUniverseRequest(&req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	universe := models.Universe{
		ID:               req.ID,
		Label:            req.Label,
		PassthroughMode:  req.PassthroughMode,
		MergeMode:        req.MergeMode,
		MasterFaderColor: req.MasterFaderColor,
		InputType:        req.InputType,
		InputConfigJSON:  string(req.InputConfig),
		InputEnabled:     req.InputEnabled,
	}
	if err := s.universeRepo.Create(r.Context(), &universe); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventIOChanged, nil)
	respond(w, http.StatusCreated, universeToView(&universe))
}

func (s *Server) handleUpdateUniverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid universe id")
		return
	}
	universe, err := s.universeRepo.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load universe")
		return
	}
	if universe == nil {
		respondError(w, http.StatusNotFound, "universe not found")
		return
	}

	var req universeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if msg := validUniverseRequest(&req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	universe.Label = req.Label
	if req.PassthroughMode != "" {
		universe.PassthroughMode = req.PassthroughMode
	}
	if req.MergeMode != "" {
		universe.MergeMode = req.MergeMode
	}
	universe.MasterFaderColor = req.MasterFaderColor
	if req.InputType != "" {
		universe.InputType = req.InputType
	}
	universe.InputConfigJSON = string(req.InputConfig)
	universe.InputEnabled = req.InputEnabled

	if err := s.universeRepo.Update(r.Context(), universe); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update universe")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventIOChanged, nil)
	respond(w, http.StatusOK, universeToView(universe))
}

func (s *Server) handleDeleteUniverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid universe id")
		return
	}
	if err := s.universeRepo.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete universe")
		return
	}
	// Parks pinned to a removed universe have nothing to hold.
	if err := s.parkRepo.UnparkUniverse(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear parks")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventIOChanged, nil)
	respond(w, http.StatusOK, nil)
}

type ioStatusView struct {
	Universes   []universeView `json:"universes"`
	InputBypass bool           `json:"input_bypass"`
}

func (s *Server) handleIOStatus(w http.ResponseWriter, r *http.Request) {
	universes, err := s.universeRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load universes")
		return
	}
	view := ioStatusView{
		Universes:   make([]universeView, 0, len(universes)),
		InputBypass: s.eng.InputBypass(),
	}
	for i := range universes {
		view.Universes = append(view.Universes, universeToView(&universes[i]))
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	options, err := network.Interfaces()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to enumerate interfaces")
		return
	}
	respond(w, http.StatusOK, options)
}

type addOutputRequest struct {
	UniverseID int             `json:"universe_id"`
	Protocol   string          `json:"protocol"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	Priority   int             `json:"priority"`
}

func (s *Server) handleAddOutput(w http.ResponseWriter, r *http.Request) {
	var req addOutputRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	switch req.Protocol {
	case "artnet", "sacn", "mock":
	default:
		respondError(w, http.StatusBadRequest, "invalid output protocol")
		return
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		respondError(w, http.StatusBadRequest, "invalid output config")
		return
	}

	out := models.UniverseOutput{
		UniverseID: req.UniverseID,
		Protocol:   req.Protocol,
		ConfigJSON: string(req.Config),
		Enabled:    req.Enabled,
		Priority:   req.Priority,
	}
	if err := s.universeRepo.AddOutput(r.Context(), &out); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to add output")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventIOChanged, nil)
	respond(w, http.StatusCreated, outputView{ID: out.ID, Protocol: out.Protocol, Enabled: out.Enabled, Priority: out.Priority})
}

func (s *Server) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid output id")
		return
	}
	if err := s.universeRepo.DeleteOutput(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete output")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventIOChanged, nil)
	respond(w, http.StatusOK, nil)
}

type bypassRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleInputBypass(w http.ResponseWriter, r *http.Request) {
	if !identityFrom(r.Context()).CanBypass {
		respondError(w, http.StatusForbidden, "bypass permission denied")
		return
	}
	var req bypassRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.eng.SetInputBypass(req.Active)
	respond(w, http.StatusOK, nil)
}
