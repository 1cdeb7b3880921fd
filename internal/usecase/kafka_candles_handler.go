package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	pkgkafka "FinPattern/pkg/kafka"
	"FinPattern/pkg/logger"
	xutil "FinPattern/pkg/util"
)

// KafkaCandlesHandler ingests closed 15m candles from Kafka.
type KafkaCandlesHandler struct {
	topic    string
	candles  domrepo.CandleSource
	recorder *IndicatorRecorder
	builder  *PatternBuilder
	metrics  domrepo.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewKafkaCandlesHandler(
	topic string,
	candles domrepo.CandleSource,
	recorder *IndicatorRecorder,
	builder *PatternBuilder,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{
		topic:    topic,
		candles:  candles,
		recorder: recorder,
		builder:  builder,
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
	}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// candleMessage is the wire form: {t, o, h, l, c, v} with t in seconds or ms.
type candleMessage struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

func (m candleMessage) candle() (models.Candle, error) {
	if m.T <= 0 {
		return models.Candle{}, fmt.Errorf("candle time %d invalid", m.T)
	}
	t := xutil.FromUnix(m.T)
	if !models.AlignTime(t).Equal(t) {
		return models.Candle{}, fmt.Errorf("candle time %s not on the 15m grid", t.Format(time.RFC3339))
	}
	if m.H < m.L || m.V < 0 {
		return models.Candle{}, fmt.Errorf("candle %s has inconsistent values", t.Format(time.RFC3339))
	}
	return models.Candle{OpenTime: t, Open: m.O, High: m.H, Low: m.L, Close: m.C, Volume: m.V}, nil
}

// Handle stores the candle, records its indicator row and builds the
// pattern whose 24h horizon the candle completes.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var m candleMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	c, err := m.candle()
	if err != nil {
		h.metrics.RecordError("consumer_invalid")
		return err
	}

	start := h.now()
	if err := h.candles.UpsertCandles(ctx, []models.Candle{c}); err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store candle: %w", err)
	}
	h.metrics.RecordLatency("ch_insert_seconds", h.now().Sub(start).Seconds())
	// close time to now
	h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(c.OpenTime.Add(models.CandleInterval)).Seconds())

	if _, _, err := h.recorder.RecordAt(ctx, c.OpenTime); err != nil {
		h.metrics.RecordError("consumer_indicators")
		h.logger.Warn("record indicators failed", logger.Time("candle_time", c.OpenTime), logger.Error(err))
	}
	if _, err := h.builder.BuildLatest(ctx, c.OpenTime.Add(-models.Horizon)); err != nil {
		h.logger.Warn("latest pattern failed", logger.Time("candle_time", c.OpenTime), logger.Error(err))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
