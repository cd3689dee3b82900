package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"NiftyPulse/internal/domain/models"
	domsvc "NiftyPulse/internal/domain/service"
	"NiftyPulse/internal/service/ratelimit"
	"NiftyPulse/pkg/cache"

	"github.com/labstack/echo/v4"
)

type fakeService struct {
	active       []models.Signal
	history      []models.Signal
	historyErr   error
	historyCalls int
	lastLimit    int
	running      bool
}

func (f *fakeService) GetActiveSignals(context.Context) ([]models.Signal, error) { return f.active, nil }

func (f *fakeService) GetSignalHistory(_ context.Context, limit int) ([]models.Signal, error) {
	f.historyCalls++
	f.lastLimit = limit
	return f.history, f.historyErr
}

func (f *fakeService) GetSessionStatus(context.Context) []models.TradingSession {
	return []models.TradingSession{{Name: "Morning Opening", Status: models.SessionCompleted}}
}

func (f *fakeService) StartMonitoring() bool {
	changed := !f.running
	f.running = true
	return changed
}

func (f *fakeService) StopMonitoring() bool {
	changed := f.running
	f.running = false
	return changed
}

func (f *fakeService) Status() domsvc.MonitorStatus { return domsvc.MonitorStatus{Running: f.running} }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *SignalsEchoHandler, method, target string) envelope {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return env
}

func TestActiveSignalsEmptyList(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeService{}, nil, nil)
	env := serve(t, h, http.MethodGet, "/api/signals/active")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	var data struct {
		Rows  []models.Signal `json:"rows"`
		Total int64           `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Rows == nil || data.Total != 0 {
		t.Fatalf("expected an empty list, got %s", env.Data)
	}
}

func TestSignalHistoryLimitAndCache(t *testing.T) {
	svc := &fakeService{history: []models.Signal{{ID: "a"}, {ID: "b"}}}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := NewSignalsEchoHandler(nil, svc, mc, nil)

	if env := serve(t, h, http.MethodGet, "/api/signals/history"); env.Status != http.StatusOK || svc.lastLimit != 50 {
		t.Fatalf("default limit: status %d limit %d", env.Status, svc.lastLimit)
	}
	serve(t, h, http.MethodGet, "/api/signals/history")
	if svc.historyCalls != 1 {
		t.Fatalf("second call must hit the cache, service called %d times", svc.historyCalls)
	}
	if env := serve(t, h, http.MethodGet, "/api/signals/history?limit=501"); env.Status != http.StatusBadRequest {
		t.Fatalf("limit above 500 must be rejected, got %d", env.Status)
	}
	serve(t, h, http.MethodGet, "/api/signals/history?limit=5")
	if svc.lastLimit != 5 {
		t.Fatalf("limit not passed through: %d", svc.lastLimit)
	}
}

func TestSignalHistoryError(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeService{historyErr: errors.New("db down")}, nil, nil)
	if env := serve(t, h, http.MethodGet, "/api/signals/history"); env.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 envelope, got %d", env.Status)
	}
}

func TestMonitoringToggle(t *testing.T) {
	svc := &fakeService{}
	h := NewSignalsEchoHandler(nil, svc, nil, nil)
	var res struct {
		Changed bool `json:"changed"`
	}

	env := serve(t, h, http.MethodPost, "/api/monitoring/start")
	_ = json.Unmarshal(env.Data, &res)
	if !res.Changed || !svc.running {
		t.Fatalf("start must change state")
	}
	env = serve(t, h, http.MethodPost, "/api/monitoring/start")
	_ = json.Unmarshal(env.Data, &res)
	if res.Changed {
		t.Fatalf("second start must be a no-op")
	}
	serve(t, h, http.MethodPost, "/api/monitoring/stop")
	if svc.running {
		t.Fatalf("stop must stop")
	}
}

func TestSessionsAndThrottle(t *testing.T) {
	h := NewSignalsEchoHandler(nil, &fakeService{}, nil, ratelimit.New(0.001, 1))
	if env := serve(t, h, http.MethodGet, "/api/sessions"); env.Status != http.StatusOK {
		t.Fatalf("first request must pass, got %d", env.Status)
	}
	if env := serve(t, h, http.MethodGet, "/api/sessions"); env.Status != http.StatusTooManyRequests {
		t.Fatalf("second request must be throttled, got %d", env.Status)
	}
	if env := serve(t, h, http.MethodGet, "/healthz"); env.Status != http.StatusOK {
		t.Fatalf("health must not be throttled, got %d", env.Status)
	}
}
