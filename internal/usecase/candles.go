package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
)

// CandlesUseCase serves raw candles and their indicator rows.
type CandlesUseCase struct {
	candles    domrepo.CandleSource
	indicators domrepo.IndicatorSource
}

func NewCandlesUseCase(candles domrepo.CandleSource, indicators domrepo.IndicatorSource) *CandlesUseCase {
	return &CandlesUseCase{candles: candles, indicators: indicators}
}

type GetCandlesParams struct {
	From       time.Time
	To         time.Time
	Limit      int
	Indicators bool
}

type GetCandlesResult struct {
	From       time.Time             `json:"from"`
	To         time.Time             `json:"to"`
	Count      int                   `json:"count"`
	Candles    []models.Candle       `json:"candles"`
	Indicators []models.IndicatorRow `json:"indicators,omitempty"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	candles, err := uc.candles.CandlesBetween(ctx, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}
	res := &GetCandlesResult{
		From:    p.From,
		To:      p.To,
		Count:   len(candles),
		Candles: candles,
	}
	if p.Indicators && len(candles) > 0 {
		rows, err := uc.indicators.Between(ctx, candles[0].OpenTime, candles[len(candles)-1].OpenTime)
		if err != nil {
			return nil, fmt.Errorf("get indicators: %w", err)
		}
		res.Indicators = rows
	}
	return res, nil
}
