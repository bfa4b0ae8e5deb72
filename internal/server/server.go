package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/taskpay/internal/config"
	"github.com/dukerupert/taskpay/internal/handler"
	"github.com/dukerupert/taskpay/internal/metrics"
	"github.com/dukerupert/taskpay/internal/middleware"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/settlement"
	"github.com/dukerupert/taskpay/internal/store"
	"github.com/dukerupert/taskpay/internal/task"
	"github.com/dukerupert/taskpay/internal/wallet"
	ws "github.com/dukerupert/taskpay/internal/websocket"
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	accountStore   *store.AccountStore
	taskStore      *store.TaskStore
	taskService    *task.Service
	engine         *settlement.Engine
	rates          *wallet.RateCache
	metrics        *metrics.Metrics
	rateLimiter    *middleware.RateLimiter
	accountH       *handler.AccountHandler
	taskH          *handler.TaskHandler
	ledgerH        *handler.LedgerHandler
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, gateway wallet.Gateway, rates *wallet.RateCache, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	accountStore := store.NewAccountStore(db)
	taskStore := store.NewTaskStore(db)
	ledgerStore := store.NewLedgerStore(db)
	settlementStore := store.NewSettlementStore(db, taskStore)

	taskService := task.NewService(taskStore, accountStore, rates, task.Config{
		FiatCurrency:   cfg.FiatCurrency,
		CryptoCurrency: cfg.CryptoCurrency,
	}, logger)

	engine := settlement.NewEngine(taskStore, settlementStore, accountStore, gateway, settlement.Config{
		PaymentTimeout: cfg.PaymentTimeout,
		StaleAfter:     cfg.StaleAfter,
		Currency:       cfg.FiatCurrency,
		Asset:          cfg.CryptoCurrency,
	}, m, logger)

	// Every fresh rate goes out to connected feeds.
	rates.OnRefresh(func(r model.Rate) {
		hub.Broadcast(ws.RateMessage(r))
	})

	return &Server{
		db:             db,
		hub:            hub,
		accountStore:   accountStore,
		taskStore:      taskStore,
		taskService:    taskService,
		engine:         engine,
		rates:          rates,
		metrics:        m,
		rateLimiter:    middleware.NewRateLimiter(cfg.ReviewRate, cfg.ReviewBurst),
		accountH:       handler.NewAccountHandler(accountStore, logger.With("component", "accounts")),
		taskH:          handler.NewTaskHandler(taskService, engine, logger.With("component", "task_handler")),
		ledgerH:        handler.NewLedgerHandler(ledgerStore, accountStore, taskService, engine, rates, logger.With("component", "ledger")),
		originPatterns: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// Engine returns the settlement engine for the reconciler.
func (s *Server) Engine() *settlement.Engine {
	return s.engine
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /api/accounts", s.accountH.Create)

	// Acting-user routes
	mux.Handle("GET /api/accounts/{id}", s.protected(s.accountH.Get))
	mux.Handle("PUT /api/accounts/{id}", s.protected(s.accountH.Update))
	mux.Handle("PUT /api/accounts/{id}/wallet", s.protected(s.accountH.SetWallet))
	mux.Handle("GET /api/children", s.parentOnly(s.accountH.ListChildren))

	mux.Handle("POST /api/tasks", s.parentOnly(s.taskH.Create))
	mux.Handle("GET /api/tasks/{id}", s.protected(s.taskH.Get))
	mux.Handle("PUT /api/tasks/{id}", s.parentOnly(s.taskH.Edit))
	mux.Handle("POST /api/tasks/{id}/submit", s.protected(s.taskH.Submit))
	mux.Handle("POST /api/tasks/{id}/approve", s.reviewLimited(s.taskH.Approve))
	mux.Handle("POST /api/tasks/{id}/reject", s.reviewLimited(s.taskH.Reject))
	mux.Handle("GET /api/children/{id}/tasks", s.protected(s.taskH.List))

	mux.Handle("GET /api/children/{id}/ledger", s.protected(s.ledgerH.History))
	mux.Handle("GET /api/children/{id}/balance", s.protected(s.ledgerH.Balance))
	mux.Handle("GET /api/rates", s.protected(s.ledgerH.Rate))

	// WebSocket
	mux.Handle("GET /ws/children/{id}/tasks", s.protected(
		ws.HandleTaskFeed(s.hub, s.taskStore, s.taskService, s.originPatterns, s.logger.With("component", "task_feed")),
	))

	// Instrument wraps the mux directly so r.Pattern is visible after routing.
	return middleware.RequestLogger(s.logger.With("component", "http"))(s.metrics.Instrument(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireUser(s.accountStore)(h)
}

func (s *Server) parentOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireUser(s.accountStore)(middleware.RequireParent(h))
}

// reviewLimited throttles approve and reject per acting parent.
func (s *Server) reviewLimited(h http.HandlerFunc) http.Handler {
	return middleware.RequireUser(s.accountStore)(
		middleware.RequireParent(middleware.RateLimit(s.rateLimiter)(h)),
	)
}
