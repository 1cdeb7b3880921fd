package models

import (
	"fmt"
	"strings"
)

type RsiBucket string

const (
	RsiLow  RsiBucket = "LOW"
	RsiMid  RsiBucket = "MID"
	RsiHigh RsiBucket = "HIGH"
)

type EmaTrend string

const (
	EmaBull EmaTrend = "BULL"
	EmaBear EmaTrend = "BEAR"
)

type VolumeBucket string

const (
	VolLow    VolumeBucket = "LOW"
	VolMedium VolumeBucket = "MEDIUM"
	VolHigh   VolumeBucket = "HIGH"
)

// StrategyBucketID identifies one of the 18 market-condition buckets.
type StrategyBucketID string

// RsiBucketOf classifies an RSI value: <30 LOW, >70 HIGH, else MID.
func RsiBucketOf(rsi float64) RsiBucket {
	switch {
	case rsi < 30:
		return RsiLow
	case rsi > 70:
		return RsiHigh
	default:
		return RsiMid
	}
}

// EmaTrendOf is BULL iff ema50 >= ema200.
func EmaTrendOf(ema50, ema200 float64) EmaTrend {
	if ema50 >= ema200 {
		return EmaBull
	}
	return EmaBear
}

// VolumeBucketOf classifies volume change: <-20 LOW, >50 HIGH, else MEDIUM.
func VolumeBucketOf(volumeChangePct float64) VolumeBucket {
	switch {
	case volumeChangePct < -20:
		return VolLow
	case volumeChangePct > 50:
		return VolHigh
	default:
		return VolMedium
	}
}

// label is the short form used inside bucket ids; MEDIUM is written as MED.
func (v VolumeBucket) label() string {
	if v == VolMedium {
		return "MED"
	}
	return string(v)
}

// NewBucketID composes the deterministic bucket key.
func NewBucketID(r RsiBucket, e EmaTrend, v VolumeBucket) StrategyBucketID {
	return StrategyBucketID(fmt.Sprintf("RSI_%s_EMA_%s_VOL_%s", r, e, v.label()))
}

// BucketOf derives the bucket of a snapshot. ok is false when RSI, either EMA
// or the volume change is absent.
func BucketOf(s Snapshot) (StrategyBucketID, bool) {
	if s.RSI14 == nil || s.EMA50 == nil || s.EMA200 == nil || s.VolumeChangePct == nil {
		return "", false
	}
	return NewBucketID(
		RsiBucketOf(*s.RSI14),
		EmaTrendOf(*s.EMA50, *s.EMA200),
		VolumeBucketOf(*s.VolumeChangePct),
	), true
}

// AllBuckets lists the 18 bucket ids in a stable order.
func AllBuckets() []StrategyBucketID {
	out := make([]StrategyBucketID, 0, 18)
	for _, r := range []RsiBucket{RsiLow, RsiMid, RsiHigh} {
		for _, e := range []EmaTrend{EmaBull, EmaBear} {
			for _, v := range []VolumeBucket{VolLow, VolMedium, VolHigh} {
				out = append(out, NewBucketID(r, e, v))
			}
		}
	}
	return out
}

// Parts splits a bucket id back into its components.
func (id StrategyBucketID) Parts() (RsiBucket, EmaTrend, VolumeBucket, error) {
	// RSI_<r>_EMA_<e>_VOL_<v>
	p := strings.Split(string(id), "_")
	if len(p) != 6 || p[0] != "RSI" || p[2] != "EMA" || p[4] != "VOL" {
		return "", "", "", fmt.Errorf("malformed bucket id %q", id)
	}
	r, e, v := RsiBucket(p[1]), EmaTrend(p[3]), VolumeBucket(p[5])
	if p[5] == "MED" {
		v = VolMedium
	}
	switch r {
	case RsiLow, RsiMid, RsiHigh:
	default:
		return "", "", "", fmt.Errorf("unknown rsi bucket %q", p[1])
	}
	switch e {
	case EmaBull, EmaBear:
	default:
		return "", "", "", fmt.Errorf("unknown ema trend %q", p[3])
	}
	switch v {
	case VolLow, VolMedium, VolHigh:
	default:
		return "", "", "", fmt.Errorf("unknown volume bucket %q", p[5])
	}
	return r, e, v, nil
}

// StrategyType is the declared trading style of a bucket.
type StrategyType string

const (
	TypeTrendFollowing StrategyType = "TREND_FOLLOWING"
	TypeMomentum       StrategyType = "MOMENTUM"
	TypeBreakout       StrategyType = "BREAKOUT"
	TypeMeanReversion  StrategyType = "MEAN_REVERSION"
	TypeReversal       StrategyType = "REVERSAL"
)

// AllStrategyTypes lists the five strategy types.
func AllStrategyTypes() []StrategyType {
	return []StrategyType{TypeTrendFollowing, TypeMomentum, TypeBreakout, TypeMeanReversion, TypeReversal}
}

// Type returns the declared strategy type of the bucket. Malformed ids fall
// back to TREND_FOLLOWING.
func (id StrategyBucketID) Type() StrategyType {
	r, e, v, err := id.Parts()
	if err != nil {
		return TypeTrendFollowing
	}
	switch {
	case r == RsiMid && v == VolHigh:
		return TypeBreakout
	case r == RsiMid:
		return TypeTrendFollowing
	case e == EmaBear:
		return TypeReversal
	case r == RsiLow:
		return TypeMeanReversion
	default:
		return TypeMomentum
	}
}
