// solys2scope status web server.
// Serves a REST API over the run archive and the tracker's live state, so
// an unattended measurement campaign can be checked remotely.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/goa-uva/solys2scope/internal/auth"
	"github.com/goa-uva/solys2scope/internal/db"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (default: per-user config)")
	port       = flag.Int("port", 0, "HTTP server port (overrides configuration)")
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router       *chi.Mux
	database     *db.DB
	authSvc      *auth.Service
	userRepo     *db.UserRepository
	runRepo      *db.RunRepository
	spectrumRepo *db.SpectrumRepository
	cfg          *config.Config
}

func main() {
	flag.Parse()

	log.Println("Starting solys2scope status server...")

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to run archive: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.InitSchema(ctx); err != nil {
		log.Printf("Warning: schema init failed: %v", err)
	}
	cancel()

	authSvc := auth.NewService(auth.Config{
		JWTSecret:     cfg.Web.JWTSecret,
		TokenDuration: 24 * time.Hour,
	})

	srv := &Server{
		router:       chi.NewRouter(),
		database:     database,
		authSvc:      authSvc,
		userRepo:     db.NewUserRepository(database),
		runRepo:      db.NewRunRepository(database),
		spectrumRepo: db.NewSpectrumRepository(database),
		cfg:          cfg,
	}
	srv.setupRoutes()

	listenPort := cfg.Web.Port
	if *port != 0 {
		listenPort = *port
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", listenPort),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Status server listening on http://localhost:%d", listenPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down status server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleGetCurrentUser)

			// Run archive endpoints
			r.Get("/runs", s.handleGetRuns)
			r.Get("/runs/active", s.handleGetActiveRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/spectra", s.handleGetRunSpectra)

			// Tracker endpoints
			r.Get("/tracker/status", s.handleGetTrackerStatus)
			r.Post("/tracker/home", s.requireOperator(s.handleTrackerHome))

			// System endpoints
			r.Get("/system/status", s.handleGetSystemStatus)
		})
	})
}

// authMiddleware validates the bearer token and stashes the claims.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		var token string
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		} else {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const claimsKey contextKey = "claims"

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// requireOperator gates instrument-affecting endpoints behind the operator
// role.
func (s *Server) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims == nil || !auth.CanControlInstrument(claims.Role) {
			http.Error(w, "Operator role required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// handleLogin authenticates a user and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil || user == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := s.authSvc.ComparePassword(user.PasswordHash, req.Password); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.authSvc.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	_ = s.userRepo.UpdateLastLogin(r.Context(), user.ID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

// handleGetRuns returns the most recent archived runs.
func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	runs, err := s.runRepo.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Error getting runs: %v", err)
		http.Error(w, "Failed to get runs", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runRepo.Active(r.Context())
	if err != nil {
		log.Printf("Error getting active runs: %v", err)
		http.Error(w, "Failed to get active runs", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := s.runRepo.GetByID(r.Context(), runID)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunSpectra(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	spectra, err := s.spectrumRepo.ForRun(r.Context(), runID)
	if err != nil {
		log.Printf("Error getting spectra for run %d: %v", runID, err)
		http.Error(w, "Failed to get spectra", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"spectra": spectra,
		"count":   len(spectra),
	})
}

// handleGetTrackerStatus probes the tracker and reports its live pointing.
// Each request makes a short connection; the status server never holds the
// tracker's command port open.
func (s *Server) handleGetTrackerStatus(w http.ResponseWriter, r *http.Request) {
	client := solys2.NewClient(s.cfg.Solys2)
	if err := client.Connect(); err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}
	defer client.Close()

	azimuth, zenith, err := client.Position()
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"connected": true,
			"error":     err.Error(),
		})
		return
	}

	adjAzimuth, adjZenith, err := client.Adjustment()
	if err != nil {
		log.Printf("Error reading adjustment: %v", err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"connected":         true,
		"azimuth":           azimuth,
		"zenith":            zenith,
		"adjustmentAzimuth": adjAzimuth,
		"adjustmentZenith":  adjZenith,
	})
}

// handleTrackerHome sends the tracker to its home position.
func (s *Server) handleTrackerHome(w http.ResponseWriter, r *http.Request) {
	client := solys2.NewClient(s.cfg.Solys2)
	if err := client.Connect(); err != nil {
		http.Error(w, "Tracker unreachable", http.StatusServiceUnavailable)
		return
	}
	defer client.Close()

	if err := client.Home(); err != nil {
		log.Printf("Error homing tracker: %v", err)
		http.Error(w, "Failed to home tracker", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetSystemStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.database.GetStats(r.Context())
	if err != nil {
		log.Printf("Error getting archive stats: %v", err)
		stats = map[string]interface{}{}
	}

	trackerReachable := solys2.Probe(s.cfg.Solys2) == nil

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"database": db.HealthCheck(s.database),
		"tracker":  trackerReachable,
		"archive":  stats,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
