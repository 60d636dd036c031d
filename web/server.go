package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mobileperf/leakmon/database"
	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/monitor"
	"github.com/mobileperf/leakmon/sampler"
)

const defaultEventLimit = 50

// Server exposes the monitoring state over HTTP: live snapshots via
// SSE, leak event history, detector settings, and target control.
type Server struct {
	db         *database.DB
	manager    *monitor.Manager
	listenAddr string
	log        zerolog.Logger
}

func NewServer(db *database.DB, manager *monitor.Manager, listenAddr string, log zerolog.Logger) *Server {
	return &Server{
		db:         db,
		manager:    manager,
		listenAddr: listenAddr,
		log:        log.With().Str("component", "web").Logger(),
	}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listenAddr,
		Handler: s.routes(),
	}

	s.log.Info().Str("addr", s.listenAddr).Msg("starting web server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/api/targets", s.handleTargetList).Methods(http.MethodGet)
	r.HandleFunc("/api/targets", s.handleTargetStart).Methods(http.MethodPost)
	r.HandleFunc("/api/targets/{id}", s.handleTargetStop).Methods(http.MethodDelete)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEventsClear).Methods(http.MethodDelete)
	r.HandleFunc("/api/samples", s.handleSamples).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleSettingsGet).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleSettingsUpdate).Methods(http.MethodPut)
	r.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/api/stream", s.handleStream).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) handleTargetList(w http.ResponseWriter, r *http.Request) {
	rows := []TargetRow{}
	for _, mon := range s.manager.Targets().List() {
		info := mon.Detector().Target()
		rows = append(rows, TargetRow{
			ID:          mon.ID(),
			Name:        info.Name,
			PID:         info.PID,
			Platform:    info.Platform,
			BundleID:    info.BundleID,
			SampleCount: mon.Detector().SampleCount(),
			Latest:      mon.Latest(),
		})
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleTargetStart(w http.ResponseWriter, r *http.Request) {
	var req startTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Target id is required", http.StatusBadRequest)
		return
	}

	var (
		smp sampler.Sampler
		err error
	)
	switch {
	case req.Command != "":
		smp, err = sampler.NewCommandSampler(req.Command, req.Args, s.log)
	case req.PID > 0:
		smp, err = sampler.NewProcessSampler(req.PID)
	default:
		http.Error(w, "Either pid or command is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create sampler: %v", err), http.StatusBadRequest)
		return
	}

	info := leak.TargetInfo{
		Name:     req.Name,
		PID:      uint32(req.PID),
		Platform: req.Platform,
		BundleID: req.BundleID,
	}
	if info.Name == "" {
		info.Name = req.ID
	}

	if _, err := s.manager.StartTarget(req.ID, info, smp); err != nil {
		smp.Close()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, map[string]string{"id": req.ID, "status": "monitoring"})
}

func (s *Server) handleTargetStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.manager.StopTarget(id) {
		http.Error(w, "Target not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]string{"id": id, "status": "stopped"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.db.RecentLeakEvents(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch leak events")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := []EventRow{}
	for _, rec := range records {
		rows = append(rows, eventRow(rec))
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleEventsClear(w http.ResponseWriter, r *http.Request) {
	if err := s.db.ClearLeakEvents(); err != nil {
		s.log.Error().Err(err).Msg("failed to clear leak events")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]string{"status": "cleared"})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	targetID := r.URL.Query().Get("target")
	if targetID == "" {
		http.Error(w, "Missing target parameter", http.StatusBadRequest)
		return
	}

	limit := 300
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.db.RecentSnapshots(targetID, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch snapshots")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := []SampleRow{}
	for _, rec := range records {
		rows = append(rows, sampleRow(rec))
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("target"); id != "" {
		mon, ok := s.manager.Targets().Get(id)
		if !ok {
			http.Error(w, "Target not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, mon.Detector().Config())
		return
	}
	s.writeJSON(w, s.manager.Defaults())
}

// handleSettingsUpdate applies a partial config update to every
// detector. Validation fails closed: a rejected update leaves the
// previous settings in force and surfaces the reason to the operator.
func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var update leak.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	effective, err := s.manager.UpdateConfig(update)
	if err != nil {
		if errors.Is(err, leak.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, effective)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("target"); id != "" {
		if !s.manager.ResetTarget(id) {
			http.Error(w, "Target not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]string{"status": "reset", "target": id})
		return
	}
	s.manager.ResetAll()
	s.writeJSON(w, map[string]string{"status": "reset"})
}

// handleStream pushes snapshots and leak events as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgs, cancel := s.manager.Notifier().Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to marshal stream message")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, payload)
			flusher.Flush()
		}
	}
}
