package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Engine      EngineConfig     `yaml:"engine"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            bool          `yaml:"cors" default:"true"`
	// build and evaluate triggers
	TriggerRPS   float64 `yaml:"trigger_rps" default:"0.2" validate:"gt=0"`
	TriggerBurst int     `yaml:"trigger_burst" default:"2" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout" validate:"required"`
	// CollectorTopic enables aggregated error logs on Kafka when set.
	CollectorTopic    string        `yaml:"collector_topic"`
	CollectorInterval time.Duration `yaml:"collector_interval" default:"30s"`
}

type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	Path          string        `yaml:"path" default:"/metrics"`
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"1s"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost" validate:"required"`
	Port             int           `yaml:"port" default:"9000" validate:"gt=0"`
	Database         string        `yaml:"database" default:"finpattern" validate:"required"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"1m"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" default:"localhost"`
	Port     int           `yaml:"port" default:"6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Prefix   string        `yaml:"prefix" default:"finpattern"`
	LockKey  string        `yaml:"lock_key" default:"pattern-build"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"2h"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	CandleTopic string   `yaml:"candle_topic" default:"finpattern.candles.15m"`
	SignalTopic string   `yaml:"signal_topic" default:"finpattern.signals"`
	AlertTopic  string   `yaml:"alert_topic" default:"finpattern.alerts"`
	RegimeTopic string   `yaml:"regime_topic" default:"finpattern.regimes"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		RetryMax     time.Duration `yaml:"retry_max_elapsed" default:"30s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finpattern"`
		Workers    int           `yaml:"workers" default:"1" validate:"gt=0"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"finpattern.candles.dlq"`
	} `yaml:"consumer"`
}

type EngineConfig struct {
	LookbackCandles    int                 `yaml:"lookback_candles" default:"200" validate:"gte=100"`
	CacheDays          int                 `yaml:"cache_days" default:"30" validate:"gt=0"`
	RSITolerance       float64             `yaml:"rsi_tolerance" default:"5" validate:"gt=0"`
	ProfitThresholdPct float64             `yaml:"profit_threshold_pct" default:"1.0"`
	HistoryEnabled     bool                `yaml:"history_enabled" default:"true"`
	HistoryBlend       float64             `yaml:"history_blend" default:"0.3" validate:"gte=0,lte=1"`
	HistoryWindow      int                 `yaml:"history_window" default:"24" validate:"gt=0"`
	MinFutureCandles   int                 `yaml:"min_future_candles" default:"86" validate:"gt=0,lte=96"`
	EvaluatePageSize   int                 `yaml:"evaluate_page_size" default:"500" validate:"gt=0"`
	SuccessTargetPct   float64             `yaml:"success_target_pct" default:"1.0"`
	SignalThreshold    float64             `yaml:"signal_threshold" default:"60" validate:"gte=0,lte=100"`
	AllowedRegimes     map[string][]string `yaml:"allowed_regimes"`
}

type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled" default:"true"`
	RunOnStart     bool          `yaml:"run_on_start" default:"true"`
	BuildInterval  time.Duration `yaml:"build_interval" default:"15m" validate:"gt=0"`
	ResumeInterval time.Duration `yaml:"resume_interval" default:"15m" validate:"gt=0"`
	RegimeInterval time.Duration `yaml:"regime_interval" default:"15m" validate:"gt=0"`
	SignalInterval time.Duration `yaml:"signal_interval" default:"15m" validate:"gt=0"`
	VerifyInterval time.Duration `yaml:"verify_interval" default:"1h" validate:"gt=0"`
}

// Load reads defaults, then the YAML file, then .env and the environment.
// A missing file is allowed; every field then keeps its default.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	return &c, nil
}

// LoadWithEnv loads config and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(get func(string) string) {
	str := func(key string, dst *string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := get(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("ENVIRONMENT", &c.Environment)
	num("HTTP_PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	num("CLICKHOUSE_PORT", &c.ClickHouse.Port)
	str("CLICKHOUSE_DATABASE", &c.ClickHouse.Database)
	str("CLICKHOUSE_USER", &c.ClickHouse.User)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	flag("REDIS_ENABLED", &c.Redis.Enabled)
	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	flag("KAFKA_ENABLED", &c.Kafka.Enabled)
	if v := get("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	str("KAFKA_CANDLE_TOPIC", &c.Kafka.CandleTopic)
}

var validate = validator.New()

// Validate checks struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
