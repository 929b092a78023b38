package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sundial-care/sundial/internal/store"
	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/gateway/config"
	"github.com/sundial-care/sundial/pkg/gateway/handlers"
	"github.com/sundial-care/sundial/pkg/gateway/mw"
)

// Server is the call gateway: health plus the /v1/call WebSocket.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store store.Store
	model core.AuxiliaryModel
}

func New(cfg config.Config, logger *slog.Logger, st store.Store, model core.AuxiliaryModel) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		store:  st,
		model:  model,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/v1/call", handlers.CallHandler{
		Config: s.cfg,
		Logger: s.logger,
		Store:  s.store,
		Model:  s.model,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Run serves until ctx is cancelled, then drains in-flight connections
// for the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
