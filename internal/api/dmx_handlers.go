package api

import (
	"context"
	"net/http"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
)

type valuesView struct {
	UniverseID int   `json:"universe_id"`
	Values     []int `json:"values"`
	Input      []int `json:"input"`
	Master     int   `json:"master"`
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "universe")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid universe id")
		return
	}
	snap, ok := s.eng.Snapshot(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown universe")
		return
	}
	view := valuesView{
		UniverseID: id,
		Values:     make([]int, 512),
		Input:      make([]int, 512),
		Master:     int(snap.Master),
	}
	for i := 0; i < 512; i++ {
		view.Values[i] = int(snap.Values[i])
		view.Input[i] = int(snap.Input[i])
	}
	respond(w, http.StatusOK, view)
}

type setChannelsRequest struct {
	UniverseID int         `json:"universe_id"`
	Values     map[int]int `json:"values"`
}

func (s *Server) handleSetChannels(w http.ResponseWriter, r *http.Request) {
	var req setChannelsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if len(req.Values) == 0 {
		respondError(w, http.StatusBadRequest, "no channel values")
		return
	}
	values := make(map[int]byte, len(req.Values))
	for channel, value := range req.Values {
		if channel < 1 || channel > 512 {
			respondError(w, http.StatusBadRequest, "channel out of range")
			return
		}
		values[channel] = clampByte(value)
	}
	s.eng.SetChannels(req.UniverseID, values, s.eng.UserSource("http:"+identityFrom(r.Context()).ProfileName))
	respond(w, http.StatusOK, nil)
}

type parkRequest struct {
	UniverseID int  `json:"universe_id"`
	Channel    int  `json:"channel"`
	Value      *int `json:"value"`
}

// handlePark parks a channel at the given value, or at its current output
// value when the request omits one.
func (s *Server) handlePark(w http.ResponseWriter, r *http.Request) {
	if !identityFrom(r.Context()).CanPark {
		respondError(w, http.StatusForbidden, "park permission denied")
		return
	}
	var req parkRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Channel < 1 || req.Channel > 512 {
		respondError(w, http.StatusBadRequest, "channel out of range")
		return
	}

	value := 0
	if req.Value != nil {
		value = *req.Value
	} else if snap, ok := s.eng.Snapshot(req.UniverseID); ok {
		value = int(snap.Values[req.Channel-1])
	}

	s.eng.Park(req.UniverseID, req.Channel, clampByte(value))
	if err := s.parkRepo.Park(r.Context(), &models.ParkedChannel{
		UniverseID: req.UniverseID,
		Channel:    req.Channel,
		Value:      int(clampByte(value)),
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist park")
		return
	}
	respond(w, http.StatusOK, nil)
}

type unparkRequest struct {
	UniverseID int  `json:"universe_id"`
	Channel    *int `json:"channel"`
}

// handleUnpark releases one parked channel, or every park in the universe
// when no channel is given.
func (s *Server) handleUnpark(w http.ResponseWriter, r *http.Request) {
	if !identityFrom(r.Context()).CanPark {
		respondError(w, http.StatusForbidden, "park permission denied")
		return
	}
	var req unparkRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}

	if req.Channel != nil {
		s.eng.Unpark(req.UniverseID, *req.Channel)
		if err := s.parkRepo.Unpark(r.Context(), req.UniverseID, *req.Channel); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to persist unpark")
			return
		}
		respond(w, http.StatusOK, nil)
		return
	}

	parks, err := s.parkRepo.FindAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load parks")
		return
	}
	for _, park := range parks {
		if park.UniverseID == req.UniverseID {
			s.eng.Unpark(park.UniverseID, park.Channel)
		}
	}
	if err := s.parkRepo.UnparkUniverse(r.Context(), req.UniverseID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist unpark")
		return
	}
	respond(w, http.StatusOK, nil)
}

type highlightRequest struct {
	Active   bool     `json:"active"`
	DimLevel int      `json:"dim_level"`
	Channels [][2]int `json:"channels"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	if !identityFrom(r.Context()).CanHighlight {
		respondError(w, http.StatusForbidden, "highlight permission denied")
		return
	}
	var req highlightRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.eng.SetHighlight(req.Active, clampByte(req.DimLevel), req.Channels)
	respond(w, http.StatusOK, nil)
}

type blackoutRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleBlackout(w http.ResponseWriter, r *http.Request) {
	var req blackoutRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.eng.SetBlackout(req.Active)
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingRepo.All(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	respond(w, http.StatusOK, settings)
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Key == "" {
		respondError(w, http.StatusBadRequest, "setting key required")
		return
	}
	if err := s.settingRepo.Set(r.Context(), req.Key, req.Value); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store setting")
		return
	}
	respond(w, http.StatusOK, nil)
}

// LoadParks seeds the engine's park table from persistence. Called once
// at startup, before the first tick goes out.
func (s *Server) LoadParks(ctx context.Context) error {
	parks, err := s.parkRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	entries := make([]protocol.ParkEntry, 0, len(parks))
	for _, park := range parks {
		entries = append(entries, protocol.ParkEntry{
			UniverseID: park.UniverseID,
			Channel:    park.Channel,
			Value:      park.Value,
		})
	}
	s.eng.LoadParks(entries)
	return nil
}
