package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/usecase"
	xhttp "FinPattern/pkg/http"
	xlogger "FinPattern/pkg/logger"
	xutil "FinPattern/pkg/util"

	"github.com/labstack/echo/v4"
)

type PatternPipeline interface {
	FullBuild(ctx context.Context) (models.BuildReport, error)
	IncrementalBuild(ctx context.Context) (models.BuildReport, error)
	ResumeFromIndicators(ctx context.Context) (models.BuildReport, error)
	EvaluatePending(ctx context.Context) (models.BuildReport, error)
}

type Backfiller interface {
	Backfill(ctx context.Context, from time.Time) (models.BuildReport, error)
}

type Verifier interface {
	VerifyPending(ctx context.Context) (usecase.VerifyReport, error)
}

// BusyChecker reports whether a gated run is in flight.
type BusyChecker interface {
	Busy() bool
}

// PipelineHandler serves the POST triggers. Without ?wait=true a run is
// started in the background and answered with 202.
type PipelineHandler struct {
	logger   *xlogger.Logger
	pipeline PatternPipeline
	backfill Backfiller
	verifier Verifier
	gate     BusyChecker
	limit    echo.MiddlewareFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipelineHandler(
	logger *xlogger.Logger,
	pipeline PatternPipeline,
	backfill Backfiller,
	verifier Verifier,
	gate BusyChecker,
	limit echo.MiddlewareFunc,
) *PipelineHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PipelineHandler{
		logger:   logger.With("api"),
		pipeline: pipeline,
		backfill: backfill,
		verifier: verifier,
		gate:     gate,
		limit:    limit,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if h.limit != nil {
		mw = append(mw, h.limit)
	}
	g := e.Group("/api")
	g.POST("/patterns/build", h.Build, mw...)
	g.POST("/patterns/evaluate", h.Evaluate, mw...)
	g.POST("/indicators/backfill", h.Backfill, mw...)
	g.POST("/signals/verify", h.Verify, mw...)
}

func (h *PipelineHandler) Build(c echo.Context) error {
	req := &models.BuildRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var run func(context.Context) (models.BuildReport, error)
	switch models.BuildMode(req.Mode) {
	case models.ModeFull:
		run = h.pipeline.FullBuild
	case models.ModeResume:
		run = h.pipeline.ResumeFromIndicators
	default:
		run = h.pipeline.IncrementalBuild
	}
	return h.trigger(c, models.BuildMode(req.Mode), req.Wait, run)
}

func (h *PipelineHandler) Evaluate(c echo.Context) error {
	req := &models.TriggerRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.trigger(c, models.ModeEvaluate, req.Wait, h.pipeline.EvaluatePending)
}

func (h *PipelineHandler) Backfill(c echo.Context) error {
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xutil.ParseTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From).WithParam("field", "from"))
	}
	return h.trigger(c, models.ModeBackfill, req.Wait, func(ctx context.Context) (models.BuildReport, error) {
		return h.backfill.Backfill(ctx, from)
	})
}

// Verify is not gated and always runs inline.
func (h *PipelineHandler) Verify(c echo.Context) error {
	rep, err := h.verifier.VerifyPending(c.Request().Context())
	if err != nil {
		h.logger.Error("signal verification failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("signal verification failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *PipelineHandler) trigger(c echo.Context, mode models.BuildMode, wait bool, run func(context.Context) (models.BuildReport, error)) error {
	if h.gate.Busy() {
		return h.busy(c, mode)
	}

	if wait {
		rep, err := run(c.Request().Context())
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.InternalError(string(mode)+" failed").
				WithParam("report", rep).WithError(err))
		}
		if rep.Status == models.StatusBusy {
			return h.busy(c, mode)
		}
		return xhttp.SuccessResponse(c, rep)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		rep, err := run(h.ctx)
		if err != nil {
			h.logger.Error("background run failed", xlogger.String("mode", string(mode)), xlogger.Error(err))
			return
		}
		h.logger.Info("background run finished",
			xlogger.String("mode", string(mode)),
			xlogger.String("status", string(rep.Status)))
	}()
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"mode": string(mode), "status": "accepted"})
}

func (h *PipelineHandler) busy(c echo.Context, mode models.BuildMode) error {
	return xhttp.AppErrorResponse(c, xhttp.ConflictError(usecase.ErrBuildBusy.Error()).
		WithParam("mode", string(mode)).WithError(usecase.ErrBuildBusy))
}

// Close cancels background runs and waits for them to return.
func (h *PipelineHandler) Close() {
	h.cancel()
	h.wg.Wait()
}
