package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pixelpie/internal/monitoring"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	router *mux.Router
	port   string
	log    *monitoring.Logger
}

func NewServer(port string, log *monitoring.Logger) *Server {
	return &Server{
		router: mux.NewRouter(),
		port:   port,
		log:    log,
	}
}

// SetupRoutes настраивает все маршруты сервера
func (s *Server) SetupRoutes(payments PaymentConfirmer, health *monitoring.HealthChecker) {
	NewYooKassaHandler(payments, s.log).SetupRoutes(s.router)

	s.router.HandleFunc("/health", health.HealthHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
}

// Handler маршрутизатор, обернутый трассировкой
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "pixelpie-http")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware логирует запросы и пишет метрики по шаблону маршрута
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		duration := time.Since(start)
		monitoring.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), duration)

		entry := s.log.WithFields(monitoring.Fields{
			"method":      r.Method,
			"path":        endpoint,
			"status":      rec.status,
			"remote_addr": r.RemoteAddr,
			"duration_ms": duration.Milliseconds(),
		})
		if endpoint == "/metrics" || endpoint == "/health" {
			entry.Debug("HTTP запрос")
			return
		}
		entry.Info("HTTP запрос")
	})
}

// Start запускает HTTP-сервер и останавливает его при отмене контекста
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(monitoring.Fields{"port": s.port}).Info("🌐 HTTP-сервер запущен")
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

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.log.Info("Остановка HTTP-сервера")
	return srv.Shutdown(shutdownCtx)
}
