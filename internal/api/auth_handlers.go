package api

import (
	"net/http"

	"github.com/dmxx/dmxx-go/internal/services/version"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Profile string `json:"profile"`
	IsAdmin bool   `json:"is_admin"`
}

// handleLogin exchanges a password for a JWT. Wrong passwords return 401
// without distinguishing profile and fallback mismatches.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request")
		return
	}

	profile, ok, err := s.authSvc.AuthenticatePassword(r.Context(), req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := s.authSvc.CreateToken(profile)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token creation failed")
		return
	}

	resp := loginResponse{Token: token, Profile: "Admin", IsAdmin: true}
	if profile != nil {
		resp.Profile = profile.Name
		resp.IsAdmin = profile.IsAdmin
	}
	respond(w, http.StatusOK, resp)
}

// handleAuthStatus reports the caller's resolved identity and permissions.
func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, identityFrom(r.Context()))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, version.Get())
}
