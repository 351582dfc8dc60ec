// Package httpapi exposes prices, spreads and task control over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// MonitorService is the monitor surface the API drives.
type MonitorService interface {
	GetPrice(ctx context.Context, chain string) (pricingDomain.PriceQuote, error)
	BatchGetPrices(ctx context.Context, chains []string) map[string]pricingDomain.PriceQuote
	StartTask(task domain.MonitoringTask, interval time.Duration) error
	StopTask(id string) bool
	Tasks() []domain.TaskSnapshot
	Task(id string) (domain.TaskSnapshot, bool)
}

// Server serves the query and control API.
type Server struct {
	port     int
	monitor  MonitorService
	registry *pricingDomain.ChainRegistry
	logger   logger.LoggerInterface
	server   *http.Server
}

// NewServer creates an API server on port.
func NewServer(port int, monitor MonitorService, registry *pricingDomain.ChainRegistry, log logger.LoggerInterface) *Server {
	return &Server{port: port, monitor: monitor, registry: registry, logger: log}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/chains", ListChains(s.registry))
		r.Get("/prices", BatchPrices(s.monitor, s.registry))
		r.Get("/prices/{chain}", GetPrice(s.monitor))
		r.Get("/spread", GetSpread(s.monitor))
		r.Get("/tasks", ListTasks(s.monitor))
		r.Post("/tasks", StartTask(s.monitor))
		r.Get("/tasks/{id}", GetTask(s.monitor))
		r.Delete("/tasks/{id}", StopTask(s.monitor))
	})

	return otelhttp.NewHandler(r, "pricegap-api")
}

// Start listens in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "api server stopped", "port", s.port, "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with apperror's response shape.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(apperror.CodeInternalError, "", err)
	}
	writeJSON(w, appErr.StatusCode, appErr.ToResponse())
}
