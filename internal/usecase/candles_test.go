package usecase

import (
	"context"
	"testing"

	"FinPattern/internal/services/features"
)

func TestGetCandles(t *testing.T) {
	cs := waveSeries(300)
	inds := newMemIndicators()
	for i := 250; i < 300; i++ {
		row, _ := features.ExtractRow(cs[i-199 : i+1])
		_ = inds.Upsert(context.Background(), row)
	}
	uc := NewCandlesUseCase(newMemCandles(cs), inds)
	ctx := context.Background()

	cases := []struct {
		name     string
		p        GetCandlesParams
		count    int
		rows     int
		firstIdx int
	}{
		{"range", GetCandlesParams{From: at(10), To: at(19)}, 10, 0, 10},
		{"limit keeps newest", GetCandlesParams{From: at(0), To: at(299), Limit: 5}, 5, 0, 295},
		{"with indicators", GetCandlesParams{From: at(240), To: at(299), Indicators: true}, 60, 50, 240},
	}
	for _, c := range cases {
		res, err := uc.GetCandles(ctx, c.p)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if res.Count != c.count || len(res.Indicators) != c.rows || !res.Candles[0].OpenTime.Equal(at(c.firstIdx)) {
			t.Errorf("%s: got count %d rows %d", c.name, res.Count, len(res.Indicators))
		}
	}
	if _, err := uc.GetCandles(ctx, GetCandlesParams{From: at(5), To: at(1)}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
