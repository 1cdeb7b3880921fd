//go:build wireinject
// +build wireinject

package di

import (
	"FinPattern/internal/domain/repository"
	internalrepo "FinPattern/internal/repository"
	"FinPattern/internal/usecase"
	"FinPattern/pkg/config"
	"FinPattern/pkg/metrics"
	"FinPattern/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideJobMetrics,
	ProvideClickHouseClient,
	ProvideRedis,
	ProvideBuildGate,
	ProvideResultCache,
	ProvideNotifier,
)

var repositorySet = wire.NewSet(
	internalrepo.NewCHCandles,
	wire.Bind(new(repository.CandleSource), new(*internalrepo.CHCandles)),
	internalrepo.NewCHIndicators,
	wire.Bind(new(repository.IndicatorSource), new(*internalrepo.CHIndicators)),
	internalrepo.NewCHPatterns,
	wire.Bind(new(repository.PatternRepository), new(*internalrepo.CHPatterns)),
	internalrepo.NewCHStrategies,
	wire.Bind(new(repository.StrategyStatsRepository), new(*internalrepo.CHStrategies)),
	internalrepo.NewCHRegimes,
	wire.Bind(new(repository.RegimeRepository), new(*internalrepo.CHRegimes)),
	internalrepo.NewCHSignals,
	wire.Bind(new(repository.SignalRepository), new(*internalrepo.CHSignals)),
)

var usecaseSet = wire.NewSet(
	ProvidePatternCache,
	ProvideEngine,
	ProvideLedger,
	ProvideIndicatorRecorder,
	ProvidePatternBuilder,
	ProvideRegimeMonitor,
	ProvideSignalService,
	ProvideSignalVerifier,
	usecase.NewCandlesUseCase,
	ProvideConsumer,
)

var transportSet = wire.NewSet(
	ProvideHub,
	ProvideQueryHandler,
	ProvidePipelineHandler,
	ProvideHTTPServer,
	ProvideScheduler,
	ProvideApp,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(infraSet, repositorySet, usecaseSet, transportSet)
	return &server.App{}, nil
}
