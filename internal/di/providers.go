package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"TradePull/internal/domain/repository"
	"TradePull/internal/feed"
	"TradePull/internal/handler/api"
	internalrepo "TradePull/internal/repository"
	"TradePull/internal/runtime"
	"TradePull/internal/sandbox"
	"TradePull/internal/scheduler"
	"TradePull/internal/service/openalgo"
	"TradePull/internal/service/smartfeed"
	"TradePull/pkg/cache"
	pkgch "TradePull/pkg/clickhouse"
	"TradePull/pkg/config"
	xhttp "TradePull/pkg/http"
	pkgkafka "TradePull/pkg/kafka"
	applogger "TradePull/pkg/logger"
	"TradePull/pkg/metrics"
	"TradePull/pkg/server"
)

// ProvideLogger creates the process-wide structured logger with the
// in-memory collector attached for the recent-logs endpoint.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
	})
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache creates the Redis client for the record stores.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "tradepull"
	}
	return cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(prefix),
	)
}

// ProvideCredentialStore creates the Redis-backed credential store.
func ProvideCredentialStore(c *cache.RedisCache) repository.CredentialStore {
	return internalrepo.NewRedisCredentialStore(c)
}

// ProvideInstanceStore creates the Redis-backed instance store.
func ProvideInstanceStore(c *cache.RedisCache) repository.InstanceStore {
	return internalrepo.NewRedisInstanceStore(c)
}

// ProvideUserStore creates the Redis-backed user store.
func ProvideUserStore(c *cache.RedisCache) repository.UserStore {
	return internalrepo.NewRedisUserStore(c)
}

// ProvideClickHouseClient creates a ClickHouse client for the
// historical-bar fallback tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS tradepull",
		"CREATE TABLE IF NOT EXISTS tradepull.candles_1s (bucket DateTime, symbol String, exchange String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS tradepull.candles_1m (bucket DateTime, symbol String, exchange String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
		"CREATE TABLE IF NOT EXISTS tradepull.candles_1h (bucket DateTime, symbol String, exchange String, open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=MergeTree ORDER BY (symbol, bucket)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistoryProvider creates the ClickHouse history fallback.
func ProvideHistoryProvider(ch *pkgch.Client, l *applogger.Logger) repository.HistoryProvider {
	s := internalrepo.NewCHHistory(ch)
	s.SetLogger(l)
	return s
}

// ProvideEventPublisher creates the Kafka trade-event publisher, or a
// no-op publisher when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideDecoder creates the frame decoder.
func ProvideDecoder() *feed.Decoder {
	return feed.NewDecoder()
}

// ProvideRegistry creates the subscription registry.
func ProvideRegistry(cfg *config.Config) *feed.Registry {
	return feed.NewRegistry(cfg.Feed.TickBufferSize)
}

// ProvideFeedTransport creates the websocket transport.
func ProvideFeedTransport(cfg *config.Config) repository.FeedTransport {
	return smartfeed.NewTransport(cfg.Feed.WebSocketURL, cfg.Feed.ConnectTimeout)
}

// ProvideFeedConnection creates the feed connection state machine.
func ProvideFeedConnection(
	cfg *config.Config,
	transport repository.FeedTransport,
	registry *feed.Registry,
	decoder *feed.Decoder,
	l *applogger.Logger,
	m repository.Metrics,
) *feed.Connection {
	return feed.NewConnection(feed.Config{
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		ConnectTimeout:    cfg.Feed.ConnectTimeout,
		ReconnectBackoff:  cfg.Feed.ReconnectBackoff,
		MaxReconnects:     cfg.Feed.MaxReconnects,
		MaxProcessErrors:  cfg.Feed.MaxProcessErrors,
	}, transport, registry, decoder, l, m)
}

// ProvideAuthClient creates the broker auth client.
func ProvideAuthClient(cfg *config.Config) repository.AuthClient {
	timeout := cfg.Auth.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return smartfeed.NewAuth(cfg.Auth.BaseURL, timeout)
}

// ProvideOrderGateway creates the OpenAlgo order client.
func ProvideOrderGateway(cfg *config.Config) repository.OrderGateway {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return openalgo.NewClient(cfg.Gateway.HostURL, timeout)
}

// ProvideScheduler creates the background task scheduler.
func ProvideScheduler(l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(l)
}

// ProvideStoreBackoff creates the persistence backoff shared by the
// background tasks.
func ProvideStoreBackoff(cfg *config.Config) *scheduler.StoreBackoff {
	return scheduler.NewStoreBackoff(3, cfg.Scheduler.StoreRetryAfter)
}

// ProvideTokenRefresher creates the token refresh task.
func ProvideTokenRefresher(
	creds repository.CredentialStore,
	auth repository.AuthClient,
	conn *feed.Connection,
	backoff *scheduler.StoreBackoff,
	cfg *config.Config,
	l *applogger.Logger,
) *scheduler.TokenRefresher {
	return scheduler.NewTokenRefresher(creds, auth, conn, backoff, cfg.Scheduler.TokenMaxAge, l)
}

// ProvideHealthMonitor creates the feed health monitor task.
func ProvideHealthMonitor(
	creds repository.CredentialStore,
	conn *feed.Connection,
	backoff *scheduler.StoreBackoff,
	cfg *config.Config,
	l *applogger.Logger,
) *scheduler.FeedHealthMonitor {
	return scheduler.NewFeedHealthMonitor(creds, conn, backoff, cfg.Feed.StaleAfter, cfg.Feed.MaxProcessErrors, l)
}

// ProvideSandboxEngine creates the strategy script engine.
func ProvideSandboxEngine(cfg *config.Config) *sandbox.Engine {
	return sandbox.NewEngine(cfg.Runtime.ScriptTimeout)
}

// ProvideRuntimeManager creates the strategy runtime manager.
func ProvideRuntimeManager(
	cfg *config.Config,
	instances repository.InstanceStore,
	users repository.UserStore,
	history repository.HistoryProvider,
	gateway repository.OrderGateway,
	publisher repository.EventPublisher,
	conn *feed.Connection,
	registry *feed.Registry,
	engine *sandbox.Engine,
	m repository.Metrics,
	l *applogger.Logger,
) *runtime.Manager {
	return runtime.NewManager(runtime.Config{
		CycleInterval:   cfg.Runtime.CycleInterval,
		ErrorInterval:   cfg.Runtime.ErrorInterval,
		SignalThrottle:  cfg.Runtime.SignalThrottle,
		WindowSize:      cfg.Runtime.WindowSize,
		HistoryLookback: cfg.Runtime.HistoryLookback,
	}, instances, users, history, gateway, publisher, conn, registry, engine, m, l)
}

// ProvideHandlers groups the API handlers into one route registrar.
func ProvideHandlers(
	l *applogger.Logger,
	conn *feed.Connection,
	registry *feed.Registry,
	mgr *runtime.Manager,
) xhttp.Handler {
	return server.Handlers{
		api.NewFeedHandler(l, conn, registry),
		api.NewInstanceHandler(l, mgr),
		api.NewLogsHandler(l),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	conn *feed.Connection,
	sched *scheduler.Scheduler,
	refresher *scheduler.TokenRefresher,
	monitor *scheduler.FeedHealthMonitor,
	mgr *runtime.Manager,
	publisher repository.EventPublisher,
	chClient *pkgch.Client,
	redis *cache.RedisCache,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, conn, sched, refresher, monitor, mgr, publisher, chClient, redis, handler)
}
