package di

import (
	"context"
	"fmt"
	"time"

	"NiftyPulse/internal/domain/repository"
	domsvc "NiftyPulse/internal/domain/service"
	"NiftyPulse/internal/handler/api"
	mid "NiftyPulse/internal/middleware"
	internalrepo "NiftyPulse/internal/repository"
	"NiftyPulse/internal/service/broker"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/internal/service/ratelimit"
	"NiftyPulse/internal/usecase"
	"NiftyPulse/pkg/cache"
	pkgch "NiftyPulse/pkg/clickhouse"
	"NiftyPulse/pkg/config"
	xhttp "NiftyPulse/pkg/http"
	pkgkafka "NiftyPulse/pkg/kafka"
	applogger "NiftyPulse/pkg/logger"
	"NiftyPulse/pkg/metrics"
	pkgpg "NiftyPulse/pkg/postgres"
	"NiftyPulse/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideMarket builds the trading calendar.
func ProvideMarket(cfg *config.Config) (*clock.Market, error) {
	m, err := clock.NewMarket(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	return m, nil
}

// ProvideClock returns the wall clock in the market timezone.
func ProvideClock(m *clock.Market) clock.Clock {
	return clock.NewSystemClock(m.Location())
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the tick table exists.
// It returns nil when ticks are kept in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Ticks.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.TickSchema(cfg.ClickHouse.Database, cfg.Ticks.Retention)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideTickStore selects the tick store backend.
func ProvideTickStore(cfg *config.Config, ch *pkgch.Client, m *clock.Market, l *applogger.Logger) repository.TickStore {
	if ch != nil {
		return internalrepo.NewClickHouseTickStore(ch, m.Location(), l)
	}
	return internalrepo.NewMemoryTickStore()
}

// ProvidePostgresClient connects to Postgres and applies migrations. It returns nil
// when signals are kept in memory.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, func(), error) {
	if cfg.Signals.Backend != "postgres" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := pkgpg.NewClient(ctx,
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithPool(cfg.Postgres.MaxConns, cfg.Postgres.MinConns, cfg.Postgres.MaxConnLifetime),
		pkgpg.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	if err := client.RunMigrations(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return client, client.Close, nil
}

// ProvideSignalStore selects the signal store backend.
func ProvideSignalStore(pg *pkgpg.Client, m *clock.Market) repository.SignalStore {
	if pg != nil {
		return internalrepo.NewPostgresSignalStore(pg.Pool(), m.Location())
	}
	return internalrepo.NewMemorySignalStore()
}

// ProvideCache returns Redis when enabled and an in-process cache otherwise.
func ProvideCache(cfg *config.Config, clk clock.Clock) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		c := cache.NewMemoryCache(cache.WithMemoryClock(clk.Now))
		return c, func() { _ = c.Close() }, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer for signal events. It returns nil
// when Kafka broadcast is disabled or no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Broadcast.Kafka || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBroadcaster fans events out to every configured sink. With no sinks the
// events are dropped.
func ProvideBroadcaster(cfg *config.Config, producer *pkgkafka.Producer, c cache.Service, clk clock.Clock) (repository.Broadcaster, func()) {
	var sinks []repository.Broadcaster
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaBroadcaster(producer, cfg.Broadcast.Topic, clk.Now))
	}
	if rc, ok := c.(*cache.RedisCache); ok && cfg.Broadcast.Redis {
		sinks = append(sinks, internalrepo.NewRedisBroadcaster(rc.Client(), cfg.Broadcast.Channel, cfg.Broadcast.Stream, cfg.Broadcast.StreamMaxLen, clk.Now))
	}
	b := internalrepo.NewFanoutBroadcaster(clk.Now, sinks...)
	return b, func() { _ = b.Close() }
}

// ProvideTickPipeline builds the validation, dedup and batching chain in front of the tick store.
func ProvideTickPipeline(
	cfg *config.Config,
	store repository.TickStore,
	metrics repository.Metrics,
	clk clock.Clock,
	m *clock.Market,
	sink repository.Broadcaster,
	l *applogger.Logger,
) *mid.TickPipeline {
	opts := []mid.PipelineOption{
		mid.WithLimiter(ratelimit.New(float64(cfg.Ticks.MaxRPS), cfg.Ticks.Burst)),
		mid.WithDedup(mid.NewDedupGate(cfg.Ticks.MinPriceChange, cfg.Ticks.MinTimeInterval)),
		mid.WithBroadcaster(sink),
		mid.WithBufferSize(cfg.Ticks.BufferSize),
		mid.WithPipelineLogger(l),
	}
	if cfg.Ticks.MarketHoursOnly {
		opts = append(opts, mid.WithMarketHours(m))
	}
	return mid.NewTickPipeline(store, metrics, clk, opts...)
}

// ProvideSessionRegistry builds the configured sessions for both instruments.
func ProvideSessionRegistry(cfg *config.Config, m *clock.Market) (*usecase.SessionRegistry, error) {
	r, err := usecase.NewSessionRegistry(cfg.Sessions, m, cfg.Instruments.Index, cfg.Instruments.Futures)
	if err != nil {
		return nil, fmt.Errorf("session registry: %w", err)
	}
	return r, nil
}

func readPolicy(cfg *config.Config) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		Attempts: cfg.Detection.RetryMax,
		Timeout:  cfg.Detection.StoreTimeout,
		Backoff:  cfg.Detection.RetryBackoff,
	}
}

// ProvideActiveSignals creates the in-memory active signal set.
func ProvideActiveSignals() *usecase.ActiveSignals {
	return usecase.NewActiveSignals()
}

// ProvideSignalGenerator wires persistence, claims and broadcast for new signals.
func ProvideSignalGenerator(
	cfg *config.Config,
	store repository.SignalStore,
	sink repository.Broadcaster,
	metrics repository.Metrics,
	active *usecase.ActiveSignals,
	c cache.Service,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(store, sink, metrics, active,
		usecase.ConfidenceConfig{PeakHourStart: cfg.Detection.PeakHourStart, PeakHourEnd: cfg.Detection.PeakHourEnd},
		usecase.WithClaims(c, 24*time.Hour),
		usecase.WithWriteTimeout(cfg.Detection.StoreTimeout),
		usecase.WithReadPolicy(readPolicy(cfg)),
		usecase.WithGeneratorLogger(l),
	)
}

// ProvideMonitor builds the detection loop.
func ProvideMonitor(
	cfg *config.Config,
	clk clock.Clock,
	m *clock.Market,
	registry *usecase.SessionRegistry,
	ticks repository.TickStore,
	signals repository.SignalStore,
	sink repository.Broadcaster,
	metrics repository.Metrics,
	gen *usecase.SignalGenerator,
	active *usecase.ActiveSignals,
	l *applogger.Logger,
) *usecase.Monitor {
	d := cfg.Detection
	return usecase.NewMonitor(usecase.MonitorConfig{
		Index:           cfg.Instruments.Index,
		Futures:         cfg.Instruments.Futures,
		ActiveInterval:  d.ActiveInterval,
		IdleInterval:    d.IdleInterval,
		CandleWindow:    d.CandleWindow,
		Staleness:       d.Staleness,
		SweepInterval:   d.SweepInterval,
		PriceLookback:   d.PriceLookback,
		VolumeThreshold: d.VolumeThreshold,
		Reads:           readPolicy(cfg),
	}, usecase.MonitorDeps{
		Clock:     clk,
		Market:    m,
		Registry:  registry,
		Ticks:     ticks,
		Signals:   signals,
		Sink:      sink,
		Metrics:   metrics,
		Generator: gen,
		Active:    active,
		History:   usecase.NewCandleHistory(d.HistorySize),
		Gate:      usecase.NewGate(d.ConfirmationGate, d.VWAPDeviation),
		Logger:    l,
	})
}

// ProvideSignalService exposes the monitor to the API layer.
func ProvideSignalService(m *usecase.Monitor) domsvc.SignalService {
	return m
}

// ProvideHTTPServer creates the Echo server with the signals API mounted.
func ProvideHTTPServer(cfg *config.Config, svc domsvc.SignalService, c cache.Service, l *applogger.Logger) *xhttp.Server {
	var rl *ratelimit.Limiter
	if cfg.Server.RateLimitRPS > 0 {
		rl = ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	h := api.NewSignalsEchoHandler(l, svc, c, rl)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideKafkaConsumer creates the tick consumer. It returns nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.EventIDHook())
	return consumer, nil
}

// ProvideKafkaTicksHandler feeds ticks from the ticks topic into the pipeline.
func ProvideKafkaTicksHandler(cfg *config.Config, pipe *mid.TickPipeline, metrics repository.Metrics, clk clock.Clock, l *applogger.Logger) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, pipe, metrics, clk, l)
}

// ProvideMarketStream creates the broker WebSocket stream. It returns nil when the feed is disabled.
func ProvideMarketStream(cfg *config.Config, clk clock.Clock, l *applogger.Logger) repository.MarketStream {
	if !cfg.Feed.Enabled {
		return nil
	}
	return broker.New(broker.Config{
		URL:            cfg.Feed.WebSocketURL,
		AuthToken:      cfg.Feed.AuthToken,
		Tokens:         cfg.Feed.Tokens,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
	}, clk, l)
}

// ProvideTickCollector drives the broker stream into the pipeline. It returns nil without a stream.
func ProvideTickCollector(cfg *config.Config, stream repository.MarketStream, pipe *mid.TickPipeline, metrics repository.Metrics, l *applogger.Logger) *usecase.TickCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewTickCollector(stream, pipe, metrics, cfg.Feed.ReconnectDelay, l)
}

// ProvideTickRetention purges ticks older than the retention window.
func ProvideTickRetention(cfg *config.Config, store repository.TickStore, clk clock.Clock, metrics repository.Metrics, l *applogger.Logger) *usecase.TickRetention {
	return usecase.NewTickRetention(store, clk, metrics, cfg.Ticks.Retention, cfg.Ticks.PurgeInterval, l)
}

// ProvideApp registers every runnable component and the resources to release on exit.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	monitor *usecase.Monitor,
	pipe *mid.TickPipeline,
	httpServer *xhttp.Server,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	retention *usecase.TickRetention,
	ticks repository.TickStore,
	signals repository.SignalStore,
) *server.App {
	app := server.New(server.WithLogger(l), server.WithCloseTimeout(cfg.Server.ShutdownTimeout+5*time.Second))

	app.Add("tick_pipeline", pipe)
	app.Add("monitor", monitor)
	app.Add("tick_retention", retention)
	app.Add("http", httpServer)
	if collector != nil {
		app.Add("tick_collector", collector)
	}
	if consumer != nil {
		consumer.RegisterHandler(kh)
		app.Add("kafka_consumer", server.RunnerFunc(func(ctx context.Context) error {
			return consumer.Run(ctx, cfg.Server.ShutdownTimeout)
		}))
	}

	app.OnClose("tick_store", ticks.Close)
	app.OnClose("signal_store", signals.Close)
	return app
}
