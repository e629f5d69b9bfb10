package api

import (
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
)

type mappingRuleView struct {
	SrcUniverse int    `json:"src_universe"`
	SrcChannel  int    `json:"src_channel"`
	DstKind     string `json:"dst_kind"`
	DstUniverse int    `json:"dst_universe,omitempty"`
	DstChannel  int    `json:"dst_channel,omitempty"`
}

type mappingView struct {
	ID               int               `json:"id"`
	Name             string            `json:"name"`
	Enabled          bool              `json:"enabled"`
	UnmappedBehavior string            `json:"unmapped_behavior"`
	Rules            []mappingRuleView `json:"rules"`
}

func mappingToView(table *models.MappingTable) mappingView {
	view := mappingView{
		ID:               table.ID,
		Name:             table.Name,
		Enabled:          table.Enabled,
		UnmappedBehavior: table.UnmappedBehavior,
		Rules:            make([]mappingRuleView, 0, len(table.Rules)),
	}
	for _, rule := range table.Rules {
		view.Rules = append(view.Rules, mappingRuleView{
			SrcUniverse: rule.SrcUniverse,
			SrcChannel:  rule.SrcChannel,
			DstKind:     rule.DstKind,
			DstUniverse: rule.DstUniverse,
			DstChannel:  rule.DstChannel,
		})
	}
	return view
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	tables, err := s.mappingRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load mapping tables")
		return
	}
	views := make([]mappingView, 0, len(tables))
	for i := range tables {
		views = append(views, mappingToView(&tables[i]))
	}
	respond(w, http.StatusOK, views)
}

type mappingRequest struct {
	Name             string            `json:"name"`
	UnmappedBehavior string            `json:"unmapped_behavior"`
	Rules            []mappingRuleView `json:"rules"`
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "mapping table name required")
		return
	}
	switch req.UnmappedBehavior {
	case "", "passthrough", "ignore":
	default:
		respondError(w, http.StatusBadRequest, "invalid unmapped behavior")
		return
	}
	for _, rule := range req.Rules {
		if rule.SrcChannel < 1 || rule.SrcChannel > 512 {
			respondError(w, http.StatusBadRequest, "rule source channel out of range")
			return
		}
		switch rule.DstKind {
		case "channel":
			if rule.DstChannel < 1 || rule.DstChannel > 512 {
				respondError(w, http.StatusBadRequest, "rule destination channel out of range")
				return
			}
		case "global_master", "universe_master":
		default:
			respondError(w, http.StatusBadRequest, "invalid rule destination kind")
			return
		}
	}

	table := models.MappingTable{
		Name:             req.Name,
		UnmappedBehavior: req.UnmappedBehavior,
		Rules:            make([]models.MappingRule, 0, len(req.Rules)),
	}
	if table.UnmappedBehavior == "" {
		table.UnmappedBehavior = "passthrough"
	}
	for _, rule := range req.Rules {
		table.Rules = append(table.Rules, models.MappingRule{
			SrcUniverse: rule.SrcUniverse,
			SrcChannel:  rule.SrcChannel,
			DstKind:     rule.DstKind,
			DstUniverse: rule.DstUniverse,
			DstChannel:  rule.DstChannel,
		})
	}
	if err := s.mappingRepo.Create(r.Context(), &table); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create mapping table")
		return
	}
	s.broadcast(protocol.EventMappingChanged, nil)
	respond(w, http.StatusCreated, mappingToView(&table))
}

type enableMappingRequest struct {
	Enabled bool `json:"enabled"`
}

// handleEnableMapping toggles a table. Enabling one disables any other
// enabled table; at most one may be active.
func (s *Server) handleEnableMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mapping table id")
		return
	}
	var req enableMappingRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if err := s.mappingRepo.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to toggle mapping table")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventMappingChanged, nil)
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mapping table id")
		return
	}
	if err := s.mappingRepo.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete mapping table")
		return
	}
	if err := s.ApplyConfig(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcast(protocol.EventMappingChanged, nil)
	respond(w, http.StatusOK, nil)
}
