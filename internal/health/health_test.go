package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type stubOutbox struct {
	stats domain.OutboxStats
	err   error
}

func (s stubOutbox) PullPending(context.Context, int) ([]domain.OutboxMessage, error) {
	return nil, nil
}
func (s stubOutbox) Stats(context.Context) (domain.OutboxStats, error) { return s.stats, s.err }
func (s stubOutbox) MarkSent(context.Context, string) error           { return nil }
func (s stubOutbox) MarkFailed(context.Context, string) error         { return nil }

func healthyPing(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(healthyPing)))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Errorf("unexpected check message: %q", response.Checks["storage"].Message)
	}
}

func TestPingChecker_RespectsTimeout(t *testing.T) {
	handler := NewHandler("test")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	started := time.Now()
	response := handler.Evaluate(context.Background())
	if response.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", response.Status)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("check was not bounded by timeout: %s", elapsed)
	}
}

func TestOutboxBacklogChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		outbox stubOutbox
		want   Status
	}{
		{name: "empty", outbox: stubOutbox{}, want: StatusHealthy},
		{name: "fresh backlog", outbox: stubOutbox{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-time.Second)}}, want: StatusHealthy},
		{name: "stale backlog", outbox: stubOutbox{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-time.Hour)}}, want: StatusDegraded},
		{name: "stats error", outbox: stubOutbox{err: errors.New("boom")}, want: StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewOutboxBacklogChecker(tt.outbox, time.Minute)
			checker.now = func() time.Time { return now }

			if got := checker.Check(context.Background()).Status; got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHealthHandler_DegradedStaysAvailable(t *testing.T) {
	handler := NewHandler("test")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(healthyPing)))
	handler.RegisterChecker("outbox", NewOutboxBacklogChecker(stubOutbox{err: errors.New("boom")}, time.Minute))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for degraded service, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ready" {
		t.Fatalf("expected ready, got %d %q", w.Code, w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("test")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(func(context.Context) error {
		return errors.New("down")
	})))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", w.Code, w.Body.String())
	}
}
