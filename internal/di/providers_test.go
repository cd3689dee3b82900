package di

import (
	"strings"
	"testing"

	internalrepo "NiftyPulse/internal/repository"
	"NiftyPulse/pkg/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Ticks.Backend = "memory"
	cfg.Signals.Backend = "memory"
	cfg.Broadcast.Kafka = false
	cfg.Log.Level = "error"
	return cfg
}

func TestInitializeAppMemoryBackends(t *testing.T) {
	cfg := memoryConfig(t)
	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cleanup()

	got := strings.Join(app.Components(), ",")
	if got != "tick_pipeline,monitor,tick_retention,http" {
		t.Fatalf("components = %s", got)
	}
}

func TestProvideStoresFallBackToMemory(t *testing.T) {
	cfg := memoryConfig(t)
	m, err := ProvideMarket(cfg)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	ch, chCleanup, err := ProvideClickHouseClient(cfg)
	if err != nil || ch != nil {
		t.Fatalf("clickhouse = %v, %v; want nil for memory backend", ch, err)
	}
	defer chCleanup()
	if _, ok := ProvideTickStore(cfg, ch, m, nil).(*internalrepo.MemoryTickStore); !ok {
		t.Fatalf("tick store should be in memory")
	}

	pg, pgCleanup, err := ProvidePostgresClient(cfg)
	if err != nil || pg != nil {
		t.Fatalf("postgres = %v, %v; want nil for memory backend", pg, err)
	}
	defer pgCleanup()
	if _, ok := ProvideSignalStore(pg, m).(*internalrepo.MemorySignalStore); !ok {
		t.Fatalf("signal store should be in memory")
	}
}

func TestOptionalComponentsDisabled(t *testing.T) {
	cfg := memoryConfig(t)
	if p, err := ProvideKafkaProducer(cfg); err != nil || p != nil {
		t.Fatalf("producer = %v, %v", p, err)
	}
	if c, err := ProvideKafkaConsumer(cfg, nil); err != nil || c != nil {
		t.Fatalf("consumer = %v, %v", c, err)
	}
	if s := ProvideMarketStream(cfg, nil, nil); s != nil {
		t.Fatalf("stream should be nil with the feed disabled")
	}
	if c := ProvideTickCollector(cfg, nil, nil, nil, nil); c != nil {
		t.Fatalf("collector should be nil without a stream")
	}
}
