package api

import (
	"context"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/usecase"
	xhttp "FinPattern/pkg/http"
	xlogger "FinPattern/pkg/logger"
	xutil "FinPattern/pkg/util"

	"github.com/labstack/echo/v4"
)

type SignalQuery interface {
	Evaluate(ctx context.Context) (models.MultiStrategyResult, bool, error)
	EvaluateSingle(ctx context.Context) (models.EvaluationResult, bool, error)
	Latest(ctx context.Context) (models.MultiStrategyResult, bool, error)
}

type RegimeQuery interface {
	Latest(ctx context.Context) (models.RegimeObservation, bool, error)
	History(ctx context.Context, n int) ([]models.RegimeObservation, error)
}

type StrategyQuery interface {
	Ranking(ctx context.Context) ([]models.StrategyStats, error)
}

type PatternStatsQuery interface {
	Stats(ctx context.Context) (models.PatternStats, error)
}

type CandleQuery interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error)
}

// QueryHandler serves the read-only endpoints.
type QueryHandler struct {
	logger     *xlogger.Logger
	signals    SignalQuery
	regimes    RegimeQuery
	strategies StrategyQuery
	patterns   PatternStatsQuery
	candles    CandleQuery
	now        func() time.Time
}

func NewQueryHandler(
	logger *xlogger.Logger,
	signals SignalQuery,
	regimes RegimeQuery,
	strategies StrategyQuery,
	patterns PatternStatsQuery,
	candles CandleQuery,
) *QueryHandler {
	return &QueryHandler{
		logger:     logger.With("api"),
		signals:    signals,
		regimes:    regimes,
		strategies: strategies,
		patterns:   patterns,
		candles:    candles,
		now:        time.Now,
	}
}

func (h *QueryHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signal", h.Signal)
	g.GET("/signal/single", h.SignalSingle)
	g.GET("/signal/latest", h.SignalLatest)
	g.GET("/regime/latest", h.RegimeLatest)
	g.GET("/regime/history", h.RegimeHistory)
	g.GET("/strategies", h.Strategies)
	g.GET("/patterns/stats", h.PatternStats)
	g.GET("/candles", h.Candles)
}

func (h *QueryHandler) Signal(c echo.Context) error {
	res, ok, err := h.signals.Evaluate(c.Request().Context())
	if err != nil {
		return h.fail(c, "signal", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("not enough market data to evaluate"))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) SignalSingle(c echo.Context) error {
	res, ok, err := h.signals.EvaluateSingle(c.Request().Context())
	if err != nil {
		return h.fail(c, "signal_single", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("not enough market data to evaluate"))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) SignalLatest(c echo.Context) error {
	res, ok, err := h.signals.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "signal_latest", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no evaluation cached yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) RegimeLatest(c echo.Context) error {
	obs, ok, err := h.regimes.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "regime_latest", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no regime observation yet"))
	}
	return xhttp.SuccessResponse(c, obs)
}

func (h *QueryHandler) RegimeHistory(c echo.Context) error {
	req := &models.RegimeHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.regimes.History(c.Request().Context(), req.N)
	if err != nil {
		return h.fail(c, "regime_history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) Strategies(c echo.Context) error {
	res, err := h.strategies.Ranking(c.Request().Context())
	if err != nil {
		return h.fail(c, "strategies", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) PatternStats(c echo.Context) error {
	res, err := h.patterns.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, "pattern_stats", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := xutil.ParseTimeDefault(req.To, h.now())
	from := xutil.ParseTimeDefault(req.From, to.Add(-time.Duration(req.Limit)*models.CandleInterval))
	from, to = xutil.AlignRange(from, to, models.CandleInterval)
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be <= to").
			WithParam("from", from).WithParam("to", to))
	}

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		From:       from,
		To:         to,
		Limit:      req.Limit,
		Indicators: req.Indicators,
	})
	if err != nil {
		return h.fail(c, "candles", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) fail(c echo.Context, op string, err error) error {
	h.logger.Error("api query failed", xlogger.String("op", op), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError(op+" failed").WithError(err))
}

var (
	_ xhttp.Handler = (*QueryHandler)(nil)
	_ xhttp.Handler = (*PipelineHandler)(nil)
	_ xhttp.Handler = (*Hub)(nil)
)
