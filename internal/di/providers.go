package di

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/repository"
	"FinPattern/internal/handler/api"
	internalrepo "FinPattern/internal/repository"
	"FinPattern/internal/service/buildgate"
	icache "FinPattern/internal/service/cache"
	jobmetrics "FinPattern/internal/service/metrics"
	"FinPattern/internal/service/ratelimit"
	"FinPattern/internal/services/ledger"
	"FinPattern/internal/services/probability"
	"FinPattern/internal/services/regime"
	"FinPattern/internal/usecase"
	pkgcache "FinPattern/pkg/cache"
	pkgch "FinPattern/pkg/clickhouse"
	"FinPattern/pkg/config"
	xhttp "FinPattern/pkg/http"
	pkgkafka "FinPattern/pkg/kafka"
	applogger "FinPattern/pkg/logger"
	"FinPattern/pkg/metrics"
	"FinPattern/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatchTimeout(p.BatchTimeout),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.WriteTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRetryMaxElapsed(p.RetryMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. Error logs are also aggregated to
// Kafka when a collector topic is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Log.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectorInterval,
			CountThreshold: 100,
			Topic:          cfg.Log.CollectorTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

func ProvideJobMetrics() *jobmetrics.JobMetrics {
	return jobmetrics.NewJobMetrics(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects with retry and creates the tables.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	c := cfg.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), c.ConnectTimeout+30*time.Second)
	defer cancel()

	log := l.With("clickhouse")
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(c.Host),
		pkgch.WithPort(c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(c.MaxOpenConns, c.MaxIdleConns),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.WriteTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
		pkgch.WithConnectRetry(c.ConnectTimeout, func(err error, next time.Duration) {
			log.Warn("clickhouse not ready, retrying", applogger.Error(err), applogger.Duration("next_ms", next))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if c.InitSchema {
		if err := client.InitSchema(ctx, pkgch.Schema(c.Database)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		log.Info("clickhouse schema ready", applogger.String("database", c.Database))
	}
	return client, nil
}

// ProvideRedis returns nil when Redis is disabled.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	r := cfg.Redis
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(r.Host),
		pkgcache.WithRedisPort(r.Port),
		pkgcache.WithRedisPassword(r.Password),
		pkgcache.WithRedisDB(r.DB),
		pkgcache.WithRedisPool(r.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(r.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideBuildGate uses a Redis lease across replicas when Redis is on.
func ProvideBuildGate(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) buildgate.Gate {
	if rc == nil {
		return buildgate.NewLocal()
	}
	return buildgate.NewDistributed(rc, cfg.Redis.LockKey, cfg.Redis.LockTTL, l.With("buildgate"))
}

func ProvideResultCache(rc *pkgcache.RedisCache) icache.BytesCache {
	if rc == nil {
		return icache.NewTTLCache()
	}
	return rc
}

func ProvideNotifier(cfg *config.Config, producer *pkgkafka.Producer) repository.Notifier {
	if producer == nil {
		return internalrepo.NopNotifier{}
	}
	return internalrepo.NewKafkaNotifier(producer, internalrepo.NotifierTopics{
		Signals: cfg.Kafka.SignalTopic,
		Alerts:  cfg.Kafka.AlertTopic,
		Regimes: cfg.Kafka.RegimeTopic,
	})
}

func ProvidePatternCache(cfg *config.Config) *icache.PatternCache {
	return icache.NewPatternCache(cfg.Engine.CacheDays)
}

func ProvideEngine(cfg *config.Config) (*probability.Engine, error) {
	policy, err := regime.NewPolicy(cfg.Engine.AllowedRegimes)
	if err != nil {
		return nil, fmt.Errorf("regime policy: %w", err)
	}
	return probability.New(probability.Config{
		RSITolerance:       cfg.Engine.RSITolerance,
		ProfitThresholdPct: cfg.Engine.ProfitThresholdPct,
		HistoryEnabled:     cfg.Engine.HistoryEnabled,
		HistoryBlend:       cfg.Engine.HistoryBlend,
	}, policy), nil
}

func ProvideLedger(repo repository.StrategyStatsRepository, l *applogger.Logger) *ledger.Ledger {
	return ledger.New(repo, l.With("ledger"))
}

func ProvideIndicatorRecorder(
	cfg *config.Config,
	candles repository.CandleSource,
	indicators repository.IndicatorSource,
	gate buildgate.Gate,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.IndicatorRecorder {
	return usecase.NewIndicatorRecorder(candles, indicators, gate, m, l.With("indicators"), cfg.Engine.LookbackCandles)
}

func ProvidePatternBuilder(
	cfg *config.Config,
	candles repository.CandleSource,
	indicators repository.IndicatorSource,
	patterns repository.PatternRepository,
	pc *icache.PatternCache,
	gate buildgate.Gate,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PatternBuilder {
	return usecase.NewPatternBuilder(candles, indicators, patterns, pc, gate, m, l.With("patterns"),
		usecase.PatternBuilderConfig{
			LookbackCandles:  cfg.Engine.LookbackCandles,
			MinFutureCandles: cfg.Engine.MinFutureCandles,
			EvaluatePageSize: cfg.Engine.EvaluatePageSize,
		})
}

func ProvideRegimeMonitor(
	candles repository.CandleSource,
	indicators repository.IndicatorSource,
	regimes repository.RegimeRepository,
	notifier repository.Notifier,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RegimeMonitor {
	return usecase.NewRegimeMonitor(candles, indicators, regimes, notifier, m, l.With("regime"))
}

func ProvideSignalService(
	cfg *config.Config,
	candles repository.CandleSource,
	indicators repository.IndicatorSource,
	pc *icache.PatternCache,
	results icache.BytesCache,
	engine *probability.Engine,
	led *ledger.Ledger,
	signals repository.SignalRepository,
	notifier repository.Notifier,
	hub *api.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalService {
	def := usecase.DefaultSignalServiceConfig()
	return usecase.NewSignalService(candles, indicators, pc, results, engine, led, signals, notifier, m, l.With("signals"),
		usecase.SignalServiceConfig{
			Threshold:     cfg.Engine.SignalThreshold,
			HistoryWindow: cfg.Engine.HistoryWindow,
			Lookback:      cfg.Engine.LookbackCandles,
			ResultTTL:     def.ResultTTL,
			Timeout:       def.Timeout,
		},
		usecase.WithBroadcaster(hub),
	)
}

func ProvideSignalVerifier(
	cfg *config.Config,
	signals repository.SignalRepository,
	candles repository.CandleSource,
	led *ledger.Ledger,
	notifier repository.Notifier,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalVerifier {
	def := usecase.DefaultSignalVerifierConfig()
	return usecase.NewSignalVerifier(signals, candles, led, notifier, m, l.With("verifier"),
		usecase.SignalVerifierConfig{
			SuccessTargetPct: cfg.Engine.SuccessTargetPct,
			MinFutureCandles: cfg.Engine.MinFutureCandles,
			BatchSize:        def.BatchSize,
		})
}

// ProvideConsumer returns a nil interface when Kafka is disabled.
func ProvideConsumer(
	cfg *config.Config,
	candles repository.CandleSource,
	recorder *usecase.IndicatorRecorder,
	builder *usecase.PatternBuilder,
	m repository.Metrics,
	l *applogger.Logger,
) (server.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(k.GroupID),
		pkgkafka.WithConsumerWorkers(k.Workers),
		pkgkafka.WithConsumerBufferSize(k.BufferSize),
		pkgkafka.WithConsumerRetry(k.RetryMax, k.BackoffMin, k.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(l.With("kafka_trace"), cfg.Metrics.SlowThreshold)))
	consumer.RegisterHandler(usecase.NewKafkaCandlesHandler(cfg.Kafka.CandleTopic, candles, recorder, builder, m, l.With("candles")))
	return consumer, nil
}

func ProvideHub(l *applogger.Logger) *api.Hub {
	return api.NewHub(l)
}

func ProvideQueryHandler(
	l *applogger.Logger,
	signals *usecase.SignalService,
	monitor *usecase.RegimeMonitor,
	led *ledger.Ledger,
	builder *usecase.PatternBuilder,
	candles *usecase.CandlesUseCase,
) *api.QueryHandler {
	return api.NewQueryHandler(l, signals, monitor, led, builder, candles)
}

func ProvidePipelineHandler(
	cfg *config.Config,
	l *applogger.Logger,
	builder *usecase.PatternBuilder,
	recorder *usecase.IndicatorRecorder,
	verifier *usecase.SignalVerifier,
	gate buildgate.Gate,
) *api.PipelineHandler {
	limiter := ratelimit.New(cfg.Server.TriggerRPS, cfg.Server.TriggerBurst)
	return api.NewPipelineHandler(l, builder, recorder, verifier, gate, limiter.Middleware())
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, q *api.QueryHandler, p *api.PipelineHandler, hub *api.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{q, p, hub},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(metricsPath, cfg.Metrics.SlowThreshold),
	)
}

// ProvideScheduler maps every periodic job onto its use case. Busy gates
// come back as a report, not an error, so they are not counted as failures.
func ProvideScheduler(
	cfg *config.Config,
	l *applogger.Logger,
	jm *jobmetrics.JobMetrics,
	builder *usecase.PatternBuilder,
	recorder *usecase.IndicatorRecorder,
	monitor *usecase.RegimeMonitor,
	signals *usecase.SignalService,
	verifier *usecase.SignalVerifier,
) *server.Scheduler {
	s := cfg.Scheduler
	return server.NewScheduler(l, jm, s.RunOnStart,
		server.Job{Name: "build", Interval: s.BuildInterval, Run: func(ctx context.Context) error {
			if _, err := builder.IncrementalBuild(ctx); err != nil {
				return err
			}
			_, err := builder.EvaluatePending(ctx)
			return err
		}},
		server.Job{Name: "resume", Interval: s.ResumeInterval, Run: func(ctx context.Context) error {
			_, err := builder.ResumeFromIndicators(ctx)
			return err
		}},
		server.Job{Name: "regime", Interval: s.RegimeInterval, Run: func(ctx context.Context) error {
			_, _, err := monitor.Detect(ctx)
			return err
		}},
		server.Job{Name: "signal", Interval: s.SignalInterval, Run: func(ctx context.Context) error {
			if _, _, err := recorder.RecordLatest(ctx); err != nil {
				return err
			}
			_, _, err := signals.Evaluate(ctx)
			return err
		}},
		server.Job{Name: "verify", Interval: s.VerifyInterval, Run: func(ctx context.Context) error {
			_, err := verifier.VerifyPending(ctx)
			return err
		}},
	)
}

// ProvideApp assembles runners and closers. Closers run in reverse, so the
// pipeline handler stops first and the producer closes last.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	builder *usecase.PatternBuilder,
	srv *xhttp.Server,
	hub *api.Hub,
	sched *server.Scheduler,
	consumer server.Consumer,
	pipeline *api.PipelineHandler,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	producer *pkgkafka.Producer,
) *server.App {
	runners := map[string]server.Runner{"http": srv, "ws": hub}
	if cfg.Scheduler.Enabled {
		runners["scheduler"] = sched
	}

	var closers []server.Closer
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", Close: producer.Close})
	}
	closers = append(closers, server.Closer{Name: "log collector", Close: func() error {
		l.RemoveCollector()
		return nil
	}})
	if rc != nil {
		closers = append(closers, server.Closer{Name: "redis", Close: rc.Close})
	}
	closers = append(closers,
		server.Closer{Name: "clickhouse", Close: ch.Close},
		server.Closer{Name: "pipeline handler", Close: func() error {
			pipeline.Close()
			return nil
		}},
	)

	return server.New(l, builder.LoadCache, runners, consumer, cfg.Server.ShutdownTimeout, closers...)
}
