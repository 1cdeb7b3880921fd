package probability

import (
	"testing"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

func flatRows(n int) []models.IndicatorRow {
	rows := make([]models.IndicatorRow, n)
	for i := range rows {
		rows[i] = models.IndicatorRow{
			Snapshot: models.Snapshot{
				Time:   ts.Add(time.Duration(i) * models.CandleInterval),
				Price:  100,
				RSI14:  num.Ptr(50),
				EMA50:  num.Ptr(100),
				EMA200: num.Ptr(100),
			},
			Volume:  10,
			BBUpper: num.Ptr(102),
			BBLower: num.Ptr(98),
			ATR14:   num.Ptr(1),
		}
	}
	return rows
}

func TestHistoricalFactorInsufficient(t *testing.T) {
	if _, ok := HistoricalFactor(flatRows(MinHistorySamples - 1)); ok {
		t.Fatalf("expected no factor under %d rows", MinHistorySamples)
	}
}

func TestHistoricalFactorNeutral(t *testing.T) {
	got, ok := HistoricalFactor(flatRows(24))
	if !ok || got != 1 {
		t.Fatalf("got %v %v want 1", got, ok)
	}
	// rows without any optional inputs are neutral too
	bare := make([]models.IndicatorRow, 8)
	if got, _ := HistoricalFactor(bare); got != 1 {
		t.Fatalf("bare rows got %v", got)
	}
}

func TestSubFactors(t *testing.T) {
	rising := flatRows(10)
	for i := range rising {
		rising[i].RSI14 = num.Ptr(30 + float64(i)*5)
	}
	// early mean 40, late mean 65 -> x clamps to 1
	if got := rsiMomentum(rising); got != 1.3 {
		t.Errorf("rsi momentum got %v", got)
	}

	gap := flatRows(10)
	gap[len(gap)-1].EMA50 = num.Ptr(100.5)
	if got := emaGapTrend(gap); got != 1.1 {
		t.Errorf("ema gap got %v", got)
	}

	recovery := flatRows(10)
	recovery[3].RSI14 = num.Ptr(25)
	recovery[9].RSI14 = num.Ptr(40)
	if got := oversoldRecovery(recovery); got != 1.2 {
		t.Errorf("oversold recovery got %v", got)
	}
	recovery[9].RSI14 = num.Ptr(46)
	if got := oversoldRecovery(recovery); got != 1.0 {
		t.Errorf("no recovery got %v", got)
	}

	low := flatRows(1)[0]
	low.Price = 98.5
	if got := bollingerPosition(low); got != 1.15 {
		t.Errorf("lower band got %v", got)
	}
	low.Price = 101.5
	if got := bollingerPosition(low); got != 0.9 {
		t.Errorf("upper band got %v", got)
	}

	atr := flatRows(10)
	atr[9].ATR14 = num.Ptr(0.8)
	if got := atrTrend(atr); got != 1.1 {
		t.Errorf("falling atr got %v", got)
	}
	atr[9].ATR14 = num.Ptr(1.3)
	if got := atrTrend(atr); got != 0.95 {
		t.Errorf("rising atr got %v", got)
	}

	vol := flatRows(10)
	for i := 5; i < 10; i++ {
		vol[i].Volume = 12
	}
	if got := volumeTrend(vol); got != 1.1 {
		t.Errorf("rising volume got %v", got)
	}
}

func TestHistoricalFactorClamped(t *testing.T) {
	rows := flatRows(10)
	for i := range rows {
		rows[i].RSI14 = num.Ptr(20 + float64(i)*2.5)
		rows[i].Volume = 10 + float64(i)*5
	}
	rows[9].RSI14 = num.Ptr(42)
	rows[9].EMA50 = num.Ptr(102)
	rows[9].Price = 98.2
	rows[9].ATR14 = num.Ptr(0.5)
	got, ok := HistoricalFactor(rows)
	if !ok {
		t.Fatalf("expected factor")
	}
	if got < 1 || got > 1.5 {
		t.Fatalf("factor %v out of expected range", got)
	}
}
