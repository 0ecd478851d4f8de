package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Pinger проверяемая зависимость (база данных, redis)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc адаптер для функций
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type HealthChecker struct {
	db    Pinger
	redis Pinger
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// NewHealthChecker redis может быть nil
func NewHealthChecker(db Pinger, redis Pinger) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
	}

	if err := ping(ctx, h.db); err != nil {
		status.Status = "unhealthy"
		status.Services["database"] = fmt.Sprintf("error: %v", err)
	} else {
		status.Services["database"] = "ok"
	}

	// Redis хранит только FSM, без него бот работает хуже, но работает
	if h.redis != nil {
		if err := ping(ctx, h.redis); err != nil {
			if status.Status == "healthy" {
				status.Status = "degraded"
			}
			status.Services["redis"] = fmt.Sprintf("warning: %v", err)
		} else {
			status.Services["redis"] = "ok"
		}
	}

	return status
}

func ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.PingContext(ctx)
}

func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if status.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}
