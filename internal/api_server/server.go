package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/api/v1alpha1"
	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/constants"
	handlers "github.com/dcm-project/vmrequest-service/internal/handlers/v1alpha1"
	"github.com/dcm-project/vmrequest-service/internal/metrics"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	readHeaderTimeout       = 10 * time.Second
	maxFormBytes            = 1 << 20
)

type Server struct {
	cfg      *config.Config
	listener net.Listener
	form     *handlers.FormHandler
	admin    *handlers.AdminHandler
}

// New creates a server. admin may be nil, in which case /admin is not mounted.
func New(cfg *config.Config, listener net.Listener, form *handlers.FormHandler, admin *handlers.AdminHandler) *Server {
	return &Server{
		cfg:      cfg,
		listener: listener,
		form:     form,
		admin:    admin,
	}
}

// Handler builds the router. Only POST /apply goes through the OpenAPI
// request validator.
func (s *Server) Handler() (http.Handler, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	swagger, err := v1alpha1.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load swagger spec: %w", err)
	}
	// Match requests regardless of the host they were sent to.
	swagger.Servers = nil

	validator := nethttpmiddleware.OapiRequestValidatorWithOptions(swagger, &nethttpmiddleware.Options{
		ErrorHandler:          s.form.RequestValidationError,
		SilenceServersWarning: true,
	})

	router.Get("/", s.form.Root)
	router.Get("/health", s.form.Health)
	router.Get("/apply", s.form.Apply)
	router.With(middleware.RequestSize(maxFormBytes), validator).Post("/apply", s.form.Submit)
	router.Get(constants.SuccessPath, s.form.Success)
	router.Handle("/metrics", metrics.Handler())

	if s.admin != nil {
		zap.S().Named("api_server").Warn("Admin surface mounted under /admin")
		router.Mount("/admin", s.admin.Routes())
	}

	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	zap.S().Named("api_server").Infow("Serving", "address", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
