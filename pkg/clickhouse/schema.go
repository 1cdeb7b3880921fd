package clickhouse

import (
	"fmt"
	"strings"
)

const (
	TableCandles    = "candles_15m"
	TableIndicators = "indicators_15m"
	TablePatterns   = "historical_patterns"
	TableStrategies = "strategy_stats"
	TableRegimes    = "regime_observations"
	TableSignals    = "signal_records"
)

// Versioned tables use ReplacingMergeTree keyed on the natural id; readers
// must query them with FINAL to see the latest row per key.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s.candles_15m (
    open_time   DateTime('UTC'),
    open        Float64,
    high        Float64,
    low         Float64,
    close       Float64,
    volume      Float64,
    version     UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY open_time;

CREATE TABLE IF NOT EXISTS %[1]s.indicators_15m (
    time              DateTime('UTC'),
    price             Float64,
    ema50             Nullable(Float64),
    ema200            Nullable(Float64),
    rsi14             Nullable(Float64),
    macd_line         Nullable(Float64),
    signal_line       Nullable(Float64),
    macd_histogram    Nullable(Float64),
    volume_change_pct Nullable(Float64),
    price_change_1h   Nullable(Float64),
    price_change_4h   Nullable(Float64),
    price_change_24h  Nullable(Float64),
    volume            Float64,
    bb_upper          Nullable(Float64),
    bb_middle         Nullable(Float64),
    bb_lower          Nullable(Float64),
    atr14             Nullable(Float64),
    version           UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY time;

CREATE TABLE IF NOT EXISTS %[1]s.historical_patterns (
    candle_time        DateTime('UTC'),
    strategy_bucket_id LowCardinality(String),
    price              Float64,
    ema50              Nullable(Float64),
    ema200             Nullable(Float64),
    rsi14              Nullable(Float64),
    macd_histogram     Nullable(Float64),
    volume_change_pct  Nullable(Float64),
    price_change_1h    Nullable(Float64),
    price_change_4h    Nullable(Float64),
    price_change_24h   Nullable(Float64),
    evaluated          Bool,
    max_profit_pct_24h Nullable(Float64),
    hours_to_max       Nullable(Float64),
    version            UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY candle_time;

CREATE TABLE IF NOT EXISTS %[1]s.strategy_stats (
    bucket_id           LowCardinality(String),
    total_predictions   UInt32,
    successes           UInt32,
    failures            UInt32,
    score               Int32,
    success_rate_pct    Float64,
    weight              Float64,
    degradation_alerted Bool,
    avg_profit_pct      Float64,
    profit_samples      UInt32,
    last_updated        DateTime64(3, 'UTC'),
    version             UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY bucket_id;

CREATE TABLE IF NOT EXISTS %[1]s.regime_observations (
    id                 String,
    timestamp          DateTime64(3, 'UTC'),
    regime             LowCardinality(String),
    confidence         Float64,
    matched_conditions UInt8,
    total_conditions   UInt8,
    mode               LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (timestamp, id);

CREATE TABLE IF NOT EXISTS %[1]s.signal_records (
    id                String,
    candle_time       DateTime('UTC'),
    bucket_id         LowCardinality(String),
    final_probability Float64,
    entry_price       Float64,
    verified          Bool,
    success           Bool,
    created_at        DateTime64(3, 'UTC'),
    version           UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY id
`

// Schema returns the idempotent DDL for every table, one statement each.
func Schema(database string) []string {
	out := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, stmt := range strings.Split(fmt.Sprintf(schemaTemplate, database), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
