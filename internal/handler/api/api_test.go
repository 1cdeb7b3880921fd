package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/usecase"
	xlogger "FinPattern/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type fakeSignals struct {
	res models.MultiStrategyResult
	ok  bool
	err error
}

func (f *fakeSignals) Evaluate(context.Context) (models.MultiStrategyResult, bool, error) {
	return f.res, f.ok, f.err
}

func (f *fakeSignals) EvaluateSingle(context.Context) (models.EvaluationResult, bool, error) {
	return models.EvaluationResult{}, f.ok, f.err
}

func (f *fakeSignals) Latest(context.Context) (models.MultiStrategyResult, bool, error) {
	return f.res, f.ok, f.err
}

type fakeRegimes struct{ gotN int }

func (f *fakeRegimes) Latest(context.Context) (models.RegimeObservation, bool, error) {
	return models.RegimeObservation{Regime: models.RegimeTrend, Confidence: 0.8}, true, nil
}

func (f *fakeRegimes) History(_ context.Context, n int) ([]models.RegimeObservation, error) {
	f.gotN = n
	return nil, nil
}

type fakeStrategies struct{}

func (fakeStrategies) Ranking(context.Context) ([]models.StrategyStats, error) { return nil, nil }

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (models.PatternStats, error) {
	return models.PatternStats{Total: 10}, nil
}

type fakeCandles struct{ got usecase.GetCandlesParams }

func (f *fakeCandles) GetCandles(_ context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error) {
	f.got = p
	return &usecase.GetCandlesResult{From: p.From, To: p.To}, nil
}

type fakePipeline struct {
	mu    sync.Mutex
	modes []models.BuildMode
	rep   models.BuildReport
	done  chan struct{}
}

func (f *fakePipeline) run(mode models.BuildMode) (models.BuildReport, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	r := f.rep
	r.Mode = mode
	return r, nil
}

func (f *fakePipeline) FullBuild(context.Context) (models.BuildReport, error) {
	return f.run(models.ModeFull)
}

func (f *fakePipeline) IncrementalBuild(context.Context) (models.BuildReport, error) {
	return f.run(models.ModeIncremental)
}

func (f *fakePipeline) ResumeFromIndicators(context.Context) (models.BuildReport, error) {
	return f.run(models.ModeResume)
}

func (f *fakePipeline) EvaluatePending(context.Context) (models.BuildReport, error) {
	return f.run(models.ModeEvaluate)
}

func (f *fakePipeline) Backfill(context.Context, time.Time) (models.BuildReport, error) {
	return f.run(models.ModeBackfill)
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) VerifyPending(context.Context) (usecase.VerifyReport, error) {
	return usecase.VerifyReport{Verified: 2, Successes: 1, Failures: 1}, f.err
}

type fakeGate struct{ busy bool }

func (g fakeGate) Busy() bool { return g.busy }

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func newQueryEcho(sig *fakeSignals, reg *fakeRegimes, cand *fakeCandles) *echo.Echo {
	e := echo.New()
	NewQueryHandler(xlogger.NewNop(), sig, reg, fakeStrategies{}, fakeStats{}, cand).RegisterRoutes(e)
	return e
}

func TestSignalEndpoint(t *testing.T) {
	tests := []struct {
		name string
		sig  *fakeSignals
		want int
	}{
		{"ok", &fakeSignals{ok: true}, http.StatusOK},
		{"insufficient data", &fakeSignals{}, http.StatusNotFound},
		{"store error", &fakeSignals{err: errors.New("down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newQueryEcho(tt.sig, &fakeRegimes{}, &fakeCandles{})
			if rec := serve(e, http.MethodGet, "/api/signal"); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRegimeHistoryValidation(t *testing.T) {
	reg := &fakeRegimes{}
	e := newQueryEcho(&fakeSignals{}, reg, &fakeCandles{})

	if rec := serve(e, http.MethodGet, "/api/regime/history"); rec.Code != http.StatusOK || reg.gotN != 96 {
		t.Fatalf("default n: code %d n %d", rec.Code, reg.gotN)
	}
	if rec := serve(e, http.MethodGet, "/api/regime/history?n=6000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCandlesAlignsRange(t *testing.T) {
	cand := &fakeCandles{}
	e := newQueryEcho(&fakeSignals{}, &fakeRegimes{}, cand)

	rec := serve(e, http.MethodGet, "/api/candles?from=2024-01-01T10:07:00Z&to=2024-01-01T12:59:00Z&limit=20")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cand.got.From.Minute() != 0 || cand.got.To.Minute() != 45 || cand.got.Limit != 20 {
		t.Fatalf("unexpected params %+v", cand.got)
	}

	rec = serve(e, http.MethodGet, "/api/candles?from=2024-01-02T00:00:00Z&to=2024-01-01T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestBuildTrigger(t *testing.T) {
	p := &fakePipeline{rep: models.BuildReport{Status: models.StatusCompleted, Built: 3}}
	e := echo.New()
	h := NewPipelineHandler(xlogger.NewNop(), p, p, fakeVerifier{}, fakeGate{}, nil)
	h.RegisterRoutes(e)
	defer h.Close()

	rec := serve(e, http.MethodPost, "/api/patterns/build?mode=full&wait=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data models.BuildReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Mode != models.ModeFull || body.Data.Built != 3 {
		t.Fatalf("unexpected report %+v", body.Data)
	}

	if rec := serve(e, http.MethodPost, "/api/patterns/build?mode=sideways"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", rec.Code)
	}
}

func TestBuildTriggerAsync(t *testing.T) {
	p := &fakePipeline{rep: models.BuildReport{Status: models.StatusCompleted}, done: make(chan struct{}, 1)}
	e := echo.New()
	h := NewPipelineHandler(xlogger.NewNop(), p, p, fakeVerifier{}, fakeGate{}, nil)
	h.RegisterRoutes(e)

	if rec := serve(e, http.MethodPost, "/api/patterns/evaluate"); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("background run did not start")
	}
	h.Close()
	if len(p.modes) != 1 || p.modes[0] != models.ModeEvaluate {
		t.Fatalf("unexpected runs %v", p.modes)
	}
}

func TestTriggerBusy(t *testing.T) {
	tests := []struct {
		name string
		gate fakeGate
		rep  models.BuildReport
	}{
		{"gate busy before start", fakeGate{busy: true}, models.BuildReport{}},
		{"run reported busy", fakeGate{}, models.BuildReport{Status: models.StatusBusy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{rep: tt.rep}
			e := echo.New()
			h := NewPipelineHandler(xlogger.NewNop(), p, p, fakeVerifier{}, tt.gate, nil)
			h.RegisterRoutes(e)
			defer h.Close()

			rec := serve(e, http.MethodPost, "/api/patterns/build?mode=incremental&wait=true")
			if rec.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d", rec.Code)
			}
		})
	}
}

func TestBackfillRequiresFrom(t *testing.T) {
	p := &fakePipeline{}
	e := echo.New()
	h := NewPipelineHandler(xlogger.NewNop(), p, p, fakeVerifier{}, fakeGate{}, nil)
	h.RegisterRoutes(e)
	defer h.Close()

	if rec := serve(e, http.MethodPost, "/api/indicators/backfill"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodPost, "/api/indicators/backfill?from=soon"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	e := echo.New()
	h := NewPipelineHandler(xlogger.NewNop(), &fakePipeline{}, &fakePipeline{}, fakeVerifier{}, fakeGate{busy: true}, nil)
	h.RegisterRoutes(e)
	defer h.Close()

	rec := serve(e, http.MethodPost, "/api/signals/verify")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"verified":2`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHubReplaysLatest(t *testing.T) {
	hub := NewHub(xlogger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	hub.Broadcast(map[string]float64{"final_probability": 72.5})

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	// the broadcast may still be queued; poll until the replay carries it
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/signals", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var got map[string]float64
		err = conn.ReadJSON(&got)
		_ = conn.Close()
		if err == nil {
			if got["final_probability"] != 72.5 {
				t.Fatalf("unexpected payload %v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no replay received: %v", err)
		}
	}
}
