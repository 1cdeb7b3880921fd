package repository

import (
	"context"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
)

// Publisher is the producer surface the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type NotifierTopics struct {
	Signals string
	Alerts  string
	Regimes string
}

// KafkaNotifier publishes signals, degradation alerts and regime changes.
type KafkaNotifier struct {
	pub    Publisher
	topics NotifierTopics
}

func NewKafkaNotifier(pub Publisher, topics NotifierTopics) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, topics: topics}
}

type signalEvent struct {
	Type             string                     `json:"type"`
	CandleTime       time.Time                  `json:"candle_time"`
	BucketID         models.StrategyBucketID    `json:"bucket_id"`
	FinalProbability float64                    `json:"final_probability"`
	Price            float64                    `json:"price"`
	Result           models.MultiStrategyResult `json:"result"`
}

func (n *KafkaNotifier) PublishSignal(ctx context.Context, r models.MultiStrategyResult) error {
	ev := signalEvent{
		Type:       "signal",
		CandleTime: r.Time,
		Price:      r.Snapshot.Price,
		Result:     r,
	}
	if r.Best != nil {
		ev.BucketID = r.Best.BucketID
		ev.FinalProbability = r.Best.FinalProbability
	}
	return n.pub.Publish(ctx, n.topics.Signals, []byte(ev.BucketID), ev)
}

func (n *KafkaNotifier) PublishDegradation(ctx context.Context, s models.StrategyStats) error {
	return n.pub.Publish(ctx, n.topics.Alerts, []byte(s.BucketID), map[string]interface{}{
		"type":             "strategy_degraded",
		"bucket_id":        s.BucketID,
		"success_rate_pct": s.SuccessRatePct,
		"weight":           s.Weight,
		"total":            s.TotalPredictions,
	})
}

func (n *KafkaNotifier) PublishRegimeChange(ctx context.Context, prev, cur models.RegimeObservation) error {
	return n.pub.Publish(ctx, n.topics.Regimes, []byte(cur.Regime), map[string]interface{}{
		"type":       "regime_change",
		"from":       prev.Regime,
		"to":         cur.Regime,
		"confidence": cur.Confidence,
		"at":         cur.Timestamp,
	})
}

// NopNotifier drops every event; used when Kafka is disabled.
type NopNotifier struct{}

func (NopNotifier) PublishSignal(context.Context, models.MultiStrategyResult) error { return nil }

func (NopNotifier) PublishDegradation(context.Context, models.StrategyStats) error { return nil }

func (NopNotifier) PublishRegimeChange(context.Context, models.RegimeObservation, models.RegimeObservation) error {
	return nil
}

var (
	_ domrepo.Notifier = (*KafkaNotifier)(nil)
	_ domrepo.Notifier = NopNotifier{}
)
