// Package api is the HTTP collaborator surface. It carries configuration
// CRUD, scene capture/recall, and the DMX convenience endpoints; live
// channel traffic stays on the message hub. Every mutation broadcasts the
// matching *_changed event so connected clients refetch.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/config"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/internal/services/input"
	"github.com/dmxx/dmxx-go/internal/services/output"
	"github.com/dmxx/dmxx-go/internal/services/scene"
)

// Deps wires the server's collaborators into the API layer.
type Deps struct {
	Config  *config.Config
	Engine  *engine.Engine
	Scenes  *scene.Service
	Auth    *auth.Service
	Inputs  *input.Manager
	Outputs *output.Dispatcher

	// Publish is the hub broadcast callback; nil disables broadcasts.
	Publish engine.Publisher

	UniverseRepo *repositories.UniverseRepository
	FixtureRepo  *repositories.FixtureRepository
	SceneRepo    *repositories.SceneRepository
	GroupRepo    *repositories.GroupRepository
	MappingRepo  *repositories.MappingRepository
	ParkRepo     *repositories.ParkRepository
	ProfileRepo  *repositories.ProfileRepository
	SettingRepo  *repositories.SettingRepository
}

// Server holds the handler state.
type Server struct {
	cfg     *config.Config
	eng     *engine.Engine
	scenes  *scene.Service
	authSvc *auth.Service
	inputs  *input.Manager
	outputs *output.Dispatcher
	publish engine.Publisher

	universeRepo *repositories.UniverseRepository
	fixtureRepo  *repositories.FixtureRepository
	sceneRepo    *repositories.SceneRepository
	groupRepo    *repositories.GroupRepository
	mappingRepo  *repositories.MappingRepository
	parkRepo     *repositories.ParkRepository
	profileRepo  *repositories.ProfileRepository
	settingRepo  *repositories.SettingRepository
}

// New creates the API server.
func New(deps Deps) *Server {
	return &Server{
		cfg:          deps.Config,
		eng:          deps.Engine,
		scenes:       deps.Scenes,
		authSvc:      deps.Auth,
		inputs:       deps.Inputs,
		outputs:      deps.Outputs,
		publish:      deps.Publish,
		universeRepo: deps.UniverseRepo,
		fixtureRepo:  deps.FixtureRepo,
		sceneRepo:    deps.SceneRepo,
		groupRepo:    deps.GroupRepo,
		mappingRepo:  deps.MappingRepo,
		parkRepo:     deps.ParkRepo,
		profileRepo:  deps.ProfileRepo,
		settingRepo:  deps.SettingRepo,
	}
}

// Router builds the /api route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/auth/status", s.handleAuthStatus)
		r.Get("/version", s.handleVersion)

		r.Route("/universes", func(r chi.Router) {
			r.Get("/", s.handleListUniverses)
			r.With(s.requirePage("io")).Post("/", s.handleCreateUniverse)
			r.With(s.requirePage("io")).Put("/{id}", s.handleUpdateUniverse)
			r.With(s.requirePage("io")).Delete("/{id}", s.handleDeleteUniverse)
		})

		r.Route("/io", func(r chi.Router) {
			r.Get("/", s.handleIOStatus)
			r.Get("/interfaces", s.handleInterfaces)
			r.With(s.requirePage("io")).Post("/outputs", s.handleAddOutput)
			r.With(s.requirePage("io")).Delete("/outputs/{id}", s.handleDeleteOutput)
			r.Post("/bypass", s.handleInputBypass)
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.With(s.requirePage("scenes")).Post("/", s.handleCaptureScene)
			r.With(s.requirePage("scenes")).Put("/{id}", s.handleUpdateScene)
			r.With(s.requirePage("scenes")).Delete("/{id}", s.handleDeleteScene)
			r.Post("/{id}/recall", s.handleRecallScene)
			r.Post("/release", s.handleReleaseScene)
		})

		r.Route("/fixtures", func(r chi.Router) {
			r.Get("/", s.handleListFixtures)
			r.With(s.requirePage("fixtures")).Post("/", s.handleCreateFixture)
			r.With(s.requirePage("fixtures")).Put("/{id}", s.handleUpdateFixture)
			r.With(s.requirePage("fixtures")).Delete("/{id}", s.handleDeleteFixture)
		})

		r.Route("/patch", func(r chi.Router) {
			r.Get("/", s.handleListPatches)
			r.With(s.requirePage("patch")).Post("/", s.handleCreatePatch)
			r.With(s.requirePage("patch")).Delete("/{id}", s.handleDeletePatch)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGrids)
			r.With(s.requirePage("groups")).Post("/", s.handleCreateGroup)
			r.With(s.requirePage("groups")).Put("/{id}", s.handleUpdateGroup)
			r.With(s.requirePage("groups")).Delete("/{id}", s.handleDeleteGroup)
			r.With(s.requirePage("groups")).Post("/grids", s.handleCreateGrid)
			r.With(s.requirePage("groups")).Delete("/grids/{id}", s.handleDeleteGrid)
		})

		r.Route("/mapping", func(r chi.Router) {
			r.Get("/", s.handleListMappings)
			r.With(s.requirePage("io")).Post("/", s.handleCreateMapping)
			r.With(s.requirePage("io")).Put("/{id}/enable", s.handleEnableMapping)
			r.With(s.requirePage("io")).Delete("/{id}", s.handleDeleteMapping)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.With(s.requirePage("settings")).Put("/", s.handleSetSetting)
		})

		r.Route("/dmx", func(r chi.Router) {
			r.Get("/values/{universe}", s.handleValues)
			r.Post("/set", s.handleSetChannels)
			r.Post("/park", s.handlePark)
			r.Post("/unpark", s.handleUnpark)
			r.Post("/highlight", s.handleHighlight)
		})

		r.Post("/blackout", s.handleBlackout)
	})

	return r
}

type contextKey string

const identityKey contextKey = "identity"

// requireAuth resolves an identity from the bearer token or client IP and
// rejects anonymous requests.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authSvc.Authenticate(r.Context(), bearerToken(r), auth.ClientIP(r))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		if identity == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePage gates a route on a UI page permission.
func (s *Server) requirePage(page string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !identityFrom(r.Context()).CanAccessPage(page) {
				respondError(w, http.StatusForbidden, "page access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFrom(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityKey).(*auth.Identity)
	return identity
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// broadcast fans a change event out through the hub.
func (s *Server) broadcast(eventType string, data interface{}) {
	if s.publish == nil {
		return
	}
	s.publish(protocol.Event{Type: eventType, Data: data})
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		v = map[string]bool{"ok": true}
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️  Response encode failed: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
