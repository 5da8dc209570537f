// Package network serves the HTTP and websocket API of a node.
package network

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/safety"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

// BridgeService is the part of bridge.Manager the API drives.
type BridgeService interface {
	CreateBridgeTransaction(ctx context.Context, req bridge.CreateRequest) (*bridge.Transaction, error)
	GetBridgeTransaction(ctx context.Context, id string) (*bridge.Transaction, error)
	GetUserBridgeTransactions(ctx context.Context, userID string) ([]*bridge.Transaction, error)
	AttachSourceTransaction(ctx context.Context, id, sourceTxHash string) (*bridge.Transaction, error)
	VerifySourceTransaction(ctx context.Context, id string) (bool, error)
	StartMinting(ctx context.Context, id string) (*bridge.Transaction, error)
	CompleteBridgeTransaction(ctx context.Context, id string) (*bridge.Transaction, error)
	RevertBridgeTransaction(ctx context.Context, id, reason string) (*bridge.Transaction, error)
	UpdateBridgeTransactionStatus(ctx context.Context, id string, status bridge.Status, metadata map[string]interface{}) (*bridge.Transaction, error)
	GetBridgeConfig(source, destination bridge.NetworkType) (bridge.RouteConfig, error)
	CalculateBridgeFee(amount string, d bridge.Direction) (string, error)
}

// SafetyEvaluator runs chain safety evaluations.
type SafetyEvaluator interface {
	EvaluateBlockchainSafety(ctx context.Context, params safety.Params, level certification.Level) (safety.Result, error)
}

type Options struct {
	Bridge         BridgeService
	Safety         SafetyEvaluator
	Auth           *Authenticator
	Hub            *Hub
	AllowedOrigins []string
	// Metrics exposes /metrics when set.
	Metrics bool
	// OnEvaluation observes every finished safety evaluation.
	OnEvaluation func(safety.Result)
	Logger       *zap.Logger
}

type Router struct {
	bridge       BridgeService
	safety       SafetyEvaluator
	auth         *Authenticator
	hub          *Hub
	origins      []string
	metrics      bool
	onEvaluation func(safety.Result)
	logger       *zap.Logger
}

func NewRouter(opts Options) (*Router, error) {
	if opts.Bridge == nil {
		return nil, errors.New("bridge service is required")
	}
	if opts.Safety == nil {
		return nil, errors.New("safety evaluator is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(opts.AllowedOrigins, logger)
	}
	onEvaluation := opts.OnEvaluation
	if onEvaluation == nil {
		onEvaluation = func(safety.Result) {}
	}
	return &Router{
		bridge:       opts.Bridge,
		safety:       opts.Safety,
		auth:         opts.Auth,
		hub:          hub,
		origins:      opts.AllowedOrigins,
		metrics:      opts.Metrics,
		onEvaluation: onEvaluation,
		logger:       logger.Named("http"),
	}, nil
}

func (rt *Router) Hub() *Hub {
	return rt.hub
}

// Handler returns the complete API with CORS, logging and recovery applied.
func (rt *Router) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(rt.recoverer, rt.requestLogger)

	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	if rt.metrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/bridge/config", rt.handleBridgeConfig).Methods(http.MethodGet)
	api.HandleFunc("/bridge/fee", rt.handleBridgeFee).Methods(http.MethodGet)
	api.HandleFunc("/safety/evaluate", rt.handleEvaluateSafety).Methods(http.MethodPost)
	api.HandleFunc("/crypto/hash", rt.handleHash).Methods(http.MethodPost)
	api.HandleFunc("/crypto/verify", rt.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/crypto/encrypt", rt.handleEncrypt).Methods(http.MethodPost)

	txs := api.PathPrefix("/bridge/transactions").Subrouter()
	txs.Use(rt.auth.Middleware)
	txs.HandleFunc("", rt.handleCreate).Methods(http.MethodPost)
	txs.HandleFunc("", rt.handleList).Methods(http.MethodGet)
	txs.HandleFunc("/{id}", rt.handleGet).Methods(http.MethodGet)
	txs.HandleFunc("/{id}/source", rt.handleAttachSource).Methods(http.MethodPost)
	txs.HandleFunc("/{id}/verify", rt.handleVerifySource).Methods(http.MethodPost)
	txs.HandleFunc("/{id}/mint", rt.handleStartMinting).Methods(http.MethodPost)
	txs.HandleFunc("/{id}/complete", rt.handleComplete).Methods(http.MethodPost)
	txs.HandleFunc("/{id}/revert", rt.handleRevert).Methods(http.MethodPost)
	txs.HandleFunc("/{id}/status", rt.handleUpdateStatus).Methods(http.MethodPatch)

	r.Handle("/ws/bridge", rt.auth.Middleware(http.HandlerFunc(rt.hub.ServeWS))).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   rt.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": rt.hub.ClientCount(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgrades need the raw writer for hijacking.
		if isWebSocketRequest(r) {
			rt.logger.Debug("websocket request", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(rec, r)
		rt.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr))
	})
}

func (rt *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				rt.logger.Error("panic serving request",
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Kind: "internal", Message: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
