// Package main is the entry point for the lumen-engine host server: it
// wires the engine core to a persistence layer, an Art-Net sink, and a
// websocket preview hub, and drives the compositor's tick loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/lucsky/cuid"

	"github.com/chromaworks/lumen-engine/internal/config"
	"github.com/chromaworks/lumen-engine/internal/database"
	"github.com/chromaworks/lumen-engine/internal/database/models"
	"github.com/chromaworks/lumen-engine/internal/database/repositories"
	"github.com/chromaworks/lumen-engine/internal/lighting/compositor"
	"github.com/chromaworks/lumen-engine/internal/lighting/effect"
	"github.com/chromaworks/lumen-engine/internal/lighting/fixture"
	"github.com/chromaworks/lumen-engine/internal/lighting/state"
	"github.com/chromaworks/lumen-engine/internal/preview"
	"github.com/chromaworks/lumen-engine/internal/transport"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

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
		&models.FixtureRecord{},
		&models.EffectPreset{},
		&models.Setting{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	fixtureRepo := repositories.NewFixtureRepository(db)
	presetRepo := repositories.NewPresetRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	registry := fixture.NewRegistry()
	engine := compositor.NewEngine(registry)

	ctx := context.Background()
	reloadFixtures(ctx, fixtureRepo, engine)

	broadcastAddr := cfg.ArtNetBroadcast
	if saved, err := settingRepo.FindByKey(ctx, "artnet_broadcast_address"); err == nil && saved != nil && saved.Value != "" {
		log.Printf("📡 Loading saved Art-Net broadcast address: %s", saved.Value)
		broadcastAddr = saved.Value
	}

	sink := transport.NewArtNetSink(transport.Config{
		Enabled:          cfg.ArtNetEnabled,
		BroadcastAddr:    broadcastAddr,
		Port:             cfg.ArtNetPort,
		ActiveRateHz:     cfg.DMXRefreshRate,
		IdleRateHz:       cfg.DMXIdleRate,
		HighRateDuration: cfg.DMXHighRateDuration,
	})
	if err := sink.Start(); err != nil {
		log.Printf("Warning: Art-Net sink failed to start: %v", err)
	}

	hub := preview.NewHub()
	go hub.Run()

	tickStop := startEngineLoop(engine, sink, hub, cfg.EngineUpdateRateHz)

	srv := &server{
		engine:      engine,
		fixtureRepo: fixtureRepo,
		presetRepo:  presetRepo,
		hub:         hub,
		startedAt:   time.Now(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/healthz", srv.handleHealth)
	router.Get("/state", srv.handleState)
	router.Get("/fixtures", srv.handleListFixtures)
	router.Put("/fixtures/{name}", srv.handleUpsertFixture)
	router.Delete("/fixtures/{name}", srv.handleDeleteFixture)
	router.Get("/presets", srv.handleListPresets)
	router.Put("/presets/{name}", srv.handleUpsertPreset)
	router.Delete("/presets/{name}", srv.handleDeletePreset)
	router.Post("/presets/{name}/start", srv.handleStartPreset)
	router.Get("/preview", hub.ServeWS)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	close(tickStop)
	sink.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// reloadFixtures restores persisted fixture descriptors into the engine's
// registry, so a restarted host doesn't need register_fixture replayed by
// an external caller.
func reloadFixtures(ctx context.Context, repo *repositories.FixtureRepository, engine *compositor.Engine) {
	descriptors, err := repo.FindAll(ctx)
	if err != nil {
		log.Printf("Warning: failed to reload persisted fixtures: %v", err)
		return
	}
	for _, d := range descriptors {
		engine.RegisterFixture(d)
	}
	log.Printf("Reloaded %d persisted fixture(s)", len(descriptors))
}

// startEngineLoop drives the compositor at rateHz, forwarding each tick's
// commands to the Art-Net sink and the preview hub. Returns a channel that
// stops the loop when closed.
func startEngineLoop(engine *compositor.Engine, sink *transport.ArtNetSink, hub *preview.Hub, rateHz int) chan struct{} {
	if rateHz <= 0 {
		rateHz = 60
	}
	stop := make(chan struct{})
	interval := time.Second / time.Duration(rateHz)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				dt := now.Sub(last)
				last = now
				cmds := engine.Update(dt, nil)
				if len(cmds) > 0 {
					sink.ApplyFrame(cmds)
					hub.BroadcastFrame(cmds)
				}
			}
		}
	}()

	return stop
}

// server holds the dependencies the HTTP handlers need.
type server struct {
	engine      *compositor.Engine
	fixtureRepo *repositories.FixtureRepository
	presetRepo  *repositories.PresetRepository
	hub         *preview.Hub
	startedAt   time.Time
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      Version,
		"uptimeSecond": time.Since(s.startedAt).Seconds(),
		"previewPeers": s.hub.ClientCount(),
	})
}

// handleState returns a read-only snapshot of the engine's current
// fixture states, for diagnostics and tooling that doesn't want to keep a
// websocket connection open.
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	fixtures := s.engine.GetFixtureStates()
	out := make(map[string]map[string]float64, len(fixtures))
	for name, fs := range fixtures {
		roles := make(map[string]float64, len(fs))
		for k, intent := range fs {
			if k.IsMarker() {
				continue
			}
			roles[string(k.Role)] = intent.Value
		}
		out[name] = roles
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListFixtures(w http.ResponseWriter, r *http.Request) {
	descriptors, err := s.fixtureRepo.FindAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, descriptors)
}

func (s *server) handleUpsertFixture(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var d fixture.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, fmt.Sprintf("decode fixture: %v", err), http.StatusBadRequest)
		return
	}
	d.Name = name

	if err := s.fixtureRepo.Upsert(r.Context(), d); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.engine.RegisterFixture(d)

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteFixture(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.fixtureRepo.Delete(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// presetRequest is the wire shape for defining or updating a persisted
// preset: everything start_effect needs except an instance id and start
// time, which are assigned fresh each time the preset is started.
type presetRequest struct {
	Type     string          `json:"type"`
	Params   json.RawMessage `json:"params"`
	Targets  []string        `json:"targets"`
	Layer    int             `json:"layer"`
	Blend    int             `json:"blend"`
	Priority int             `json:"priority"`
	Envelope struct {
		UpMs   int64  `json:"upMs"`
		HoldMs int64  `json:"holdMs"`
		DownMs *int64 `json:"downMs"`
	} `json:"envelope"`
}

func (req presetRequest) toInstance() (*effect.Instance, error) {
	params, err := repositories.DecodeParams(effect.Type(req.Type), string(req.Params))
	if err != nil {
		return nil, err
	}

	env := effect.Envelope{
		Up:   time.Duration(req.Envelope.UpMs) * time.Millisecond,
		Hold: time.Duration(req.Envelope.HoldMs) * time.Millisecond,
	}
	if req.Envelope.DownMs != nil {
		env = env.WithDown(time.Duration(*req.Envelope.DownMs) * time.Millisecond)
	}

	return &effect.Instance{
		Params:   params,
		Targets:  req.Targets,
		Layer:    state.Layer(req.Layer),
		Blend:    state.BlendMode(req.Blend),
		Priority: req.Priority,
		Envelope: env,
		Enabled:  true,
	}, nil
}

func (s *server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.presetRepo.FindAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *server) handleUpsertPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode preset: %v", err), http.StatusBadRequest)
		return
	}

	inst, err := req.toInstance()
	if err != nil {
		http.Error(w, fmt.Sprintf("build preset: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.presetRepo.Upsert(r.Context(), name, inst); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.presetRepo.Delete(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartPreset loads a persisted preset, mints a fresh instance id,
// and starts it on the engine — the HTTP equivalent of an external
// scheduler calling start_effect with a library-defined effect.
func (s *server) handleStartPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	row, err := s.presetRepo.FindByName(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if row == nil {
		http.Error(w, fmt.Sprintf("preset %q not found", name), http.StatusNotFound)
		return
	}

	inst, err := repositories.ToInstance(*row, cuid.New())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.engine.StartEffect(inst); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"instanceId": inst.ID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Lumen Engine Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Art-Net:     %v\n", cfg.ArtNetEnabled)
	fmt.Println("============================================")
}
