// Package httpapi exposes the service over HTTP: registration, token
// issuance and the authenticated file operations.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the chi router and the standard http.Server lifecycle.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

func NewServer(addr string, users *services.UserService, files *services.FileService,
	db *sql.DB, logger logging.Logger) *Server {

	h := &handlers{
		users:  users,
		files:  files,
		db:     db,
		logger: logger.With("module", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register/", h.register)
		r.Post("/auth", h.authenticate)
		r.Get("/ping", h.ping)

		r.Route("/files", func(r chi.Router) {
			r.Use(bearerAuth(users))
			r.Post("/upload", h.upload)
			r.Get("/download", h.download)
			r.Get("/", h.list)
		})
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		logger:     logger.With("module", "http_server"),
	}
}

// Run serves until the context is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
