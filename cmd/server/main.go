// Package main is the entry point for the DMXX server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dmxx/dmxx-go/internal/api"
	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/config"
	"github.com/dmxx/dmxx-go/internal/database"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
	"github.com/dmxx/dmxx-go/internal/hub"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/internal/services/input"
	"github.com/dmxx/dmxx-go/internal/services/output"
	"github.com/dmxx/dmxx-go/internal/services/scene"
	"github.com/dmxx/dmxx-go/internal/services/version"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&models.Universe{},
		&models.UniverseOutput{},
		&models.Fixture{},
		&models.Patch{},
		&models.Scene{},
		&models.SceneValue{},
		&models.SceneGroupValue{},
		&models.Grid{},
		&models.Group{},
		&models.GroupMember{},
		&models.MappingTable{},
		&models.MappingRule{},
		&models.ParkedChannel{},
		&models.Profile{},
		&models.Setting{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	// Repositories
	universeRepo := repositories.NewUniverseRepository(db)
	fixtureRepo := repositories.NewFixtureRepository(db)
	sceneRepo := repositories.NewSceneRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	mappingRepo := repositories.NewMappingRepository(db)
	parkRepo := repositories.NewParkRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	// Engine starts against an empty snapshot; the real configuration is
	// swapped in from the database below.
	eng, err := engine.NewEngine(engine.Config{FrameRateHz: cfg.FrameRateHz}, &engine.Snapshot{})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// Output dispatcher with a stable sACN CID persisted across restarts.
	cid := loadCID(settingRepo)
	dispatcher := output.NewDispatcher(cid)
	defer dispatcher.Close()
	eng.SetOutput(dispatcher.Dispatch)

	// Services
	sceneService := scene.NewService(eng, sceneRepo)
	sceneService.SetTransitionRate(cfg.TransitionRateHz)
	inputManager := input.NewManager(eng)
	authService := auth.NewService(cfg.SecretKey, cfg.Password, cfg.IPWhitelist, profileRepo)

	// Message hub fans engine and scene events out to clients.
	messageHub := hub.New(eng, sceneService, authService, parkRepo)
	messageHub.SetWriteDeadline(cfg.WriteDeadline)
	eng.SetPublisher(messageHub.Publish)
	sceneService.SetPublisher(messageHub.Publish)

	apiServer := api.New(api.Deps{
		Config:       cfg,
		Engine:       eng,
		Scenes:       sceneService,
		Auth:         authService,
		Inputs:       inputManager,
		Outputs:      dispatcher,
		Publish:      messageHub.Publish,
		UniverseRepo: universeRepo,
		FixtureRepo:  fixtureRepo,
		SceneRepo:    sceneRepo,
		GroupRepo:    groupRepo,
		MappingRepo:  mappingRepo,
		ParkRepo:     parkRepo,
		ProfileRepo:  profileRepo,
		SettingRepo:  settingRepo,
	})

	// Load configuration and persisted parks before the first tick.
	if err := apiServer.ApplyConfig(context.Background()); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := apiServer.LoadParks(context.Background()); err != nil {
		log.Printf("Warning: failed to load parked channels: %v", err)
	}

	eng.Start()

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", healthCheckHandler)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", messageHub.ServeWS)
	router.Mount("/api", apiServer.Router())

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://%s\n", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cleanup services in reverse order
	sceneService.Stop()
	inputManager.Stop()
	eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// loadCID returns the persisted sACN component identifier, minting and
// storing one on first run.
func loadCID(settings *repositories.SettingRepository) uuid.UUID {
	ctx := context.Background()
	stored, err := settings.Get(ctx, "sacn_cid", "")
	if err == nil && stored != "" {
		if cid, err := uuid.Parse(stored); err == nil {
			return cid
		}
	}
	cid := uuid.New()
	if err := settings.Set(ctx, "sacn_cid", cid.String()); err != nil {
		log.Printf("Warning: failed to persist sACN CID: %v", err)
	}
	return cid
}

// healthCheckHandler returns the server health status.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := fmt.Sprintf(`{
  "status": "ok",
  "timestamp": "%s",
  "version": "%s"
}`, time.Now().UTC().Format(time.RFC3339), version.Version)

	_, _ = w.Write([]byte(response))
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  DMXX Server")
	fmt.Printf("  Version: %s\n", version.Version)
	fmt.Printf("  Build:   %s\n", version.BuildTime)
	fmt.Printf("  Commit:  %s\n", version.GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Listen:      %s\n", cfg.Addr())
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Frame rate:  %d Hz\n", cfg.FrameRateHz)
	fmt.Println("============================================")
}
