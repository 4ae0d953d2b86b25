package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/devitechsolutions/vextr-sub000/internal/api"
	"github.com/devitechsolutions/vextr-sub000/internal/database"
	"github.com/devitechsolutions/vextr-sub000/pkg/config"
	"github.com/devitechsolutions/vextr-sub000/pkg/crm"
	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
	syncpkg "github.com/devitechsolutions/vextr-sub000/pkg/sync"
)

// Server owns the process lifecycle: database, CRM connector, sync
// engine and the HTTP control plane.
type Server struct {
	config *config.Config
	log    *logger.Logger

	db           *database.Connection
	crmClient    *crm.Client
	orchestrator *syncpkg.Orchestrator
	scheduler    *syncpkg.Scheduler

	http *http.Server
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repository := database.NewRepository(db.DB(), log)

	crmClient := crm.NewClient(crm.Config{
		ServerURL:        cfg.CRM.ServerURL,
		Username:         cfg.CRM.Username,
		Credential:       cfg.CRM.Credential,
		RequestTimeout:   cfg.CRM.RequestTimeout,
		MaxRetries:       cfg.CRM.MaxRetries,
		RetryBaseDelay:   cfg.CRM.RetryBaseDelay,
		ProgressInterval: cfg.CRM.ProgressInterval,
		CountFloor:       cfg.CRM.CountFloor,
	}, log)

	orchestrator := syncpkg.NewOrchestrator(crmClient, repository, syncpkg.Options{
		HistoryLimit:   cfg.Sync.HistoryLimit,
		EnableAutoSync: cfg.Sync.EnableAutoSync,
	}, log)
	scheduler := syncpkg.NewScheduler(orchestrator, cfg.Sync.Interval, log)

	s := &Server{
		config:       cfg,
		log:          log.WithField("component", "server"),
		db:           db,
		crmClient:    crmClient,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}

	router := s.buildRouter()
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(s.log, "/healthz"))

	router.GET("/healthz", s.handleHealth)

	controller := api.NewSyncController(s.orchestrator, s.scheduler, s.log)
	controller.RegisterRoutes(router.Group("/api/v1/sync"))

	return router
}

func (s *Server) handleHealth(ctx *gin.Context) {
	if err := s.db.Ping(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Run starts the HTTP listener and the scheduler (when enabled), then
// blocks until SIGINT/SIGTERM and shuts down gracefully.
func (s *Server) Run() error {
	if s.config.Sync.EnableAutoSync {
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start auto-sync: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		s.log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	return s.Shutdown()
}

// Shutdown stops the scheduler, drains HTTP, releases the CRM session
// and closes the database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.scheduler.Stop()

	if err := s.http.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("HTTP shutdown did not complete cleanly")
	}

	s.orchestrator.Shutdown(ctx)

	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Warn("Database close failed")
	}

	s.log.Info("Server stopped")
	return nil
}
