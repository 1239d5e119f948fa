// Package api provides the HTTP surface: authenticated poll triggers and
// the read endpoints consumed by the map UI.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/h4x0r/concordium-node-map-sub002/internal/job"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
)

// Job interfaces for dependency injection and testing

// BlockJobRunner runs one block poll cycle
type BlockJobRunner interface {
	Run(ctx context.Context) (*job.BlockPollResult, error)
}

// NodeJobRunner runs one node poll cycle
type NodeJobRunner interface {
	Run(ctx context.Context) (*job.NodePollResult, error)
}

// ValidatorJobRunner runs one validator poll cycle
type ValidatorJobRunner interface {
	Run(ctx context.Context) (*job.ValidatorPollResult, error)
}

// PeerReader lists known peers
type PeerReader interface {
	List(ctx context.Context) ([]*models.Peer, error)
}

// ValidatorReader lists the validator registry
type ValidatorReader interface {
	GetAll(ctx context.Context) ([]*models.Validator, error)
}

// EventReader lists change events
type EventReader interface {
	List(ctx context.Context, filters *storage.EventFilters) ([]*models.Event, error)
}

// NodeHistoryReader serves node-derived history queries
type NodeHistoryReader interface {
	GetNewNodesInRange(ctx context.Context, since, until time.Time) ([]*models.Node, error)
	GetNodeHealthHistory(ctx context.Context, nodeID string, since, until time.Time, intervalMs int64) ([]*models.HealthSample, error)
}

// SnapshotReader serves the network snapshot time series
type SnapshotReader interface {
	List(ctx context.Context, since, until time.Time) ([]*models.NetworkSnapshot, error)
	Latest(ctx context.Context) (*models.NetworkSnapshot, error)
}

// PollCacheReader loads the most recent cached poll results
type PollCacheReader interface {
	Load(ctx context.Context, kind string, dest interface{}) (bool, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server

	blockJob     BlockJobRunner
	nodeJob      NodeJobRunner
	validatorJob ValidatorJobRunner

	peers      PeerReader
	validators ValidatorReader
	events     EventReader
	nodes      NodeHistoryReader
	snapshots  SnapshotReader
	pollCache  PollCacheReader

	config *ServerConfig
	logger *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// PollBearerSecret guards the poll trigger endpoints. Empty disables
	// the triggers entirely.
	PollBearerSecret string
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	blockJob BlockJobRunner,
	nodeJob NodeJobRunner,
	validatorJob ValidatorJobRunner,
	peers PeerReader,
	validators ValidatorReader,
	events EventReader,
	nodes NodeHistoryReader,
	snapshots SnapshotReader,
	pollCache PollCacheReader,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		blockJob:     blockJob,
		nodeJob:      nodeJob,
		validatorJob: validatorJob,
		peers:        peers,
		validators:   validators,
		events:       events,
		nodes:        nodes,
		snapshots:    snapshots,
		pollCache:    pollCache,
		config:       config,
		logger:       logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Poll triggers. Bearer-authenticated; GET returns metadata without
	// running anything so schedulers can probe the endpoints.
	s.router.HandleFunc("/jobs/poll-blocks", s.handlePollBlocks).Methods("GET", "POST")
	s.router.HandleFunc("/jobs/poll-nodes", s.handlePollNodes).Methods("GET", "POST")
	s.router.HandleFunc("/jobs/poll-validators", s.handlePollValidators).Methods("GET", "POST")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/peers", s.handleListPeers).Methods("GET")
	api.HandleFunc("/validators", s.handleListValidators).Methods("GET")
	api.HandleFunc("/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/nodes/new", s.handleNewNodes).Methods("GET")
	api.HandleFunc("/nodes/{nodeId}/health-history", s.handleHealthHistory).Methods("GET")
	api.HandleFunc("/network/snapshots", s.handleNetworkSnapshots).Methods("GET")
	api.HandleFunc("/network/summary", s.handleNetworkSummary).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "node-map-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}
