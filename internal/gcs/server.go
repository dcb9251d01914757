// Package gcs implements the GCS Broadcaster from SPEC_FULL.md §4.6: a
// WebSocket server that accepts operator frames and fans out serialized
// broadcasts to every connected client, grounded in
// original_source/gcs/broadcaster.py for the frame taxonomy and in
// GChief117-SwarmC2/backend/main.go for the client-set/upgrade/broadcast
// pattern this package reuses almost verbatim, substituted onto the mission
// kernel's own frame and command types.
package gcs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/metrics"
	"github.com/skyward-ops/mobfleet/internal/middleware"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
)

// CommandSink is the Coordinator's operator-facing surface, as seen by the
// GCS server. *coordinator.Coordinator satisfies this without either package
// importing the other's concrete type.
type CommandSink interface {
	TriggerMOBMode()
	TriggerPatrolMode()
	TriggerOverwatchMode(pos model.Position)
	ConfirmTarget(droneID string)
	RejectTarget(droneID string)
	Roster() []model.FleetVehicleRecord
}

// Server is the WebSocket broadcaster plus its small REST surface
// (/api/fleet, /healthz, /metrics). It implements coordinator.Broadcaster.
type Server struct {
	cfg      config.GCSConfig
	sink     CommandSink
	logger   *slog.Logger
	metrics  *metrics.Registry
	upgrader websocket.Upgrader

	hub *hub
}

// New constructs a Server. It does not bind a listener until Run is called.
// sink may be nil at construction and set later with SetSink, which lets a
// caller break the GCS/Coordinator construction cycle (the Coordinator needs
// a Broadcaster, the GCS needs a CommandSink) by building this Server first.
func New(cfg config.GCSConfig, sink CommandSink, logger *slog.Logger, metricsReg *metrics.Registry) *Server {
	return &Server{
		cfg:     cfg,
		sink:    sink,
		logger:  obslog.ForTopic(logger, "gcs"),
		metrics: metricsReg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub: newHub(),
	}
}

func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/api/fleet", s.handleFleet).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler())
	}

	var handler http.Handler = router
	handler = middleware.Recovery(s.logger)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(handler)

	return handler
}

// Run binds the GCS HTTP/WebSocket listener and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.buildHandler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sink.Roster())
}

// SetSink attaches the operator-command sink. See New's doc comment.
func (s *Server) SetSink(sink CommandSink) {
	s.sink = sink
}
