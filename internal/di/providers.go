package di

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/handler/api"
	mid "LineGuard/internal/middleware"
	internalrepo "LineGuard/internal/repository"
	icache "LineGuard/internal/service/cache"
	imetrics "LineGuard/internal/service/metrics"
	"LineGuard/internal/service/ratelimit"
	"LineGuard/internal/services/ml"
	"LineGuard/internal/services/timeseries"
	"LineGuard/internal/usecase"
	"LineGuard/pkg/cache"
	pkgch "LineGuard/pkg/clickhouse"
	"LineGuard/pkg/config"
	xhttp "LineGuard/pkg/http"
	pkgkafka "LineGuard/pkg/kafka"
	applogger "LineGuard/pkg/logger"
	"LineGuard/pkg/metrics"
	"LineGuard/pkg/server"
)

const memoryCacheSize = 1024

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.NewWithRegistry(reg)
}

func ProvideStreamMetrics(reg *prometheus.Registry) *imetrics.StreamMetrics {
	return imetrics.NewStreamMetrics(reg)
}

// ProvideCache returns Redis behind an in-process layer when Redis is
// enabled, otherwise a memory cache. Training locks only span replicas
// in the Redis case.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(memoryCacheSize))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemory(memoryCacheSize, cfg.Redis.LocalTTL))
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	return lc, func() {
		if err := lc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

// ProvideClickHouseClient connects only when ClickHouse is the dataset
// source; otherwise it returns nil.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Dataset.Source != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := client.TableExists(ctx, cfg.ClickHouse.Table)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse table check: %w", err)
	}
	if !ok {
		// Load reports the missing table as dataset-not-found per request.
		l.Warn("clickhouse table missing", applogger.String("table", cfg.ClickHouse.Table))
	}
	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideCSVSource returns nil unless the dataset lives in a CSV file.
func ProvideCSVSource(cfg *config.Config) *internalrepo.CSVSource {
	if cfg.Dataset.Source != "csv" {
		return nil
	}
	delim, _ := utf8.DecodeRuneInString(cfg.Dataset.Delimiter)
	if delim == utf8.RuneError {
		delim = ','
	}
	return internalrepo.NewCSVSource(cfg.Dataset.Path,
		internalrepo.WithMaxRows(cfg.Dataset.MaxRows),
		internalrepo.WithDelimiter(delim),
	)
}

func ProvideDatasetSource(cfg *config.Config, csv *internalrepo.CSVSource, ch *pkgch.Client, l *applogger.Logger) domrepo.DatasetSource {
	if ch != nil {
		src := internalrepo.NewCHSource(ch, cfg.ClickHouse.Table, cfg.ClickHouse.OrderBy, cfg.Dataset.MaxRows)
		src.SetLogger(l.Named("clickhouse"))
		return src
	}
	return csv
}

// ProvideDatasetWriter is nil for read-only sources.
func ProvideDatasetWriter(csv *internalrepo.CSVSource) domrepo.DatasetWriter {
	if csv == nil {
		return nil
	}
	return csv
}

func ProvideTimeSeriesStore(cfg *config.Config, src domrepo.DatasetSource, l *applogger.Logger) *timeseries.Store {
	return timeseries.NewStore(src,
		timeseries.WithCache(icache.NewTTLCache[*models.Dataset](), cfg.Dataset.CacheTTL),
		timeseries.WithLogger(l.Named("timeseries")),
	)
}

func ProvideBundleStore(cfg *config.Config) domrepo.BundleStore {
	return internalrepo.NewFileBundleStore(cfg.Model.ArtifactPath)
}

// ProvideRunRegistry opens the SQLite run registry; an empty path disables it.
func ProvideRunRegistry(cfg *config.Config, l *applogger.Logger) (*internalrepo.SQLRunRegistry, func(), error) {
	if cfg.Model.RegistryPath == "" {
		return nil, func() {}, nil
	}
	reg, err := internalrepo.OpenSQLiteRegistry(cfg.Model.RegistryPath)
	if err != nil {
		return nil, nil, err
	}
	return reg, func() {
		if err := reg.Close(); err != nil {
			l.Warn("registry close error", applogger.Error(err))
		}
	}, nil
}

func ProvideRunRegistryPort(reg *internalrepo.SQLRunRegistry) domrepo.RunRegistry {
	if reg == nil {
		return nil
	}
	return reg
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Events.BatchTimeout),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Scoring.RetryMax+1),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes to Kafka when a producer exists and
// discards events otherwise. Closing it closes the producer.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) (domrepo.EventPublisher, func()) {
	if producer == nil {
		return internalrepo.NopEventPublisher{}, func() {}
	}
	pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Events.Topic, cfg.Kafka.Scoring.ResultsTopic)
	return pub, func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
}

func ProvideEventPipeline(cfg *config.Config, pub domrepo.EventPublisher, m domrepo.Metrics) *mid.EventPipeline {
	return mid.NewEventPipeline(pub, m,
		mid.WithMaxRPS(cfg.Kafka.Events.MaxRPS),
		mid.WithBufferSize(cfg.Kafka.Events.BufferSize),
	)
}

// ProvideTrainingParams maps configured hyperparameters onto the booster.
func ProvideTrainingParams(cfg *config.Config) ml.Params {
	t := cfg.Model.Training
	p := ml.DefaultParams()
	p.Rounds = t.Rounds
	p.MaxDepth = t.MaxDepth
	p.LearningRate = t.LearningRate
	p.Subsample = t.Subsample
	p.ColsampleByTree = t.ColsampleByTree
	p.Lambda = t.Lambda
	p.MinChildWeight = t.MinChildWeight
	p.MaxBins = t.MaxBins
	p.Seed = t.Seed
	p.Workers = t.Workers
	p.Objective = ml.Objective(t.Objective)
	return p
}

func ProvideTrainer(
	cfg *config.Config,
	store *timeseries.Store,
	bundles domrepo.BundleStore,
	registry domrepo.RunRegistry,
	events domrepo.EventPublisher,
	c cache.Service,
	m domrepo.Metrics,
	params ml.Params,
	l *applogger.Logger,
) *usecase.Trainer {
	opts := []usecase.TrainerOption{
		usecase.WithTrainingParams(params),
		usecase.WithTrainerEvents(events),
		usecase.WithTrainingLock(c, cfg.Model.LockTTL),
		usecase.WithTrainerMetrics(m),
		usecase.WithTrainerLogger(l.Named("trainer")),
	}
	if registry != nil {
		opts = append(opts, usecase.WithRunRegistry(registry))
	}
	return usecase.NewTrainer(store, bundles, opts...)
}

func ProvidePredictor(bundles domrepo.BundleStore, c cache.Service, m domrepo.Metrics, l *applogger.Logger) *usecase.Predictor {
	return usecase.NewPredictor(bundles, c, m, l.Named("predictor"))
}

func ProvideWindowValidation(store *timeseries.Store, l *applogger.Logger) *usecase.WindowValidation {
	return usecase.NewWindowValidation(store, l.Named("windows"))
}

// ProvideSimulator forwards simulated predictions through the throttled
// event pipeline in addition to the streaming client.
func ProvideSimulator(
	cfg *config.Config,
	store *timeseries.Store,
	bundles domrepo.BundleStore,
	pipe *mid.EventPipeline,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Simulator {
	return usecase.NewSimulator(store, bundles,
		usecase.WithPacing(cfg.Simulation.Interval),
		usecase.WithSimulationRowLimit(cfg.Simulation.MaxRows),
		usecase.WithSimulationSink(pipe),
		usecase.WithSimulatorMetrics(m),
		usecase.WithSimulatorLogger(l.Named("simulator")),
	)
}

func ProvideDatasetUpload(writer domrepo.DatasetWriter, store *timeseries.Store, l *applogger.Logger) *usecase.DatasetUpload {
	return usecase.NewDatasetUpload(writer, store, l.Named("upload"))
}

func ProvideScoringHandler(cfg *config.Config, p *usecase.Predictor, events domrepo.EventPublisher, l *applogger.Logger) *usecase.ScoringHandler {
	return usecase.NewScoringHandler(cfg.Kafka.Scoring.RequestsTopic, p, events, l.Named("scoring"))
}

// ProvideKafkaConsumer creates the scoring consumer; nil when Kafka is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	h *usecase.ScoringHandler,
	reg *prometheus.Registry,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	sc := cfg.Kafka.Scoring
	cl := l.Named("kafka-consumer")
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(sc.GroupID),
		pkgkafka.WithConsumerWorkers(sc.Workers),
		pkgkafka.WithConsumerBufferSize(sc.BufferSize),
		pkgkafka.WithConsumerRetry(sc.RetryMax, sc.BackoffMin, sc.BackoffMax),
		pkgkafka.WithConsumerDLQ(sc.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				cl.Warn("scoring attempt failed",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.Int64("offset", km.Offset),
					applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
					applogger.Error(err))
			},
		},
	))
	return consumer, nil
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.RateLimit.Predict
	return ratelimit.New(rl.Capacity, rl.RefillPerSec)
}

func ProvidePipelineHandler(
	cfg *config.Config,
	l *applogger.Logger,
	windows *usecase.WindowValidation,
	trainer *usecase.Trainer,
	predictor *usecase.Predictor,
	simulator *usecase.Simulator,
	upload *usecase.DatasetUpload,
	registry domrepo.RunRegistry,
	limiter *ratelimit.Limiter,
	streams *imetrics.StreamMetrics,
) *api.PipelineEchoHandler {
	return api.NewPipelineEchoHandler(l, api.PipelineDeps{
		Windows:   windows,
		Trainer:   trainer,
		Predictor: predictor,
		Simulator: simulator,
		Upload:    upload,
		Registry:  registry,
		Limiter:   limiter,
		Streams:   streams,
	}, cfg.Server.AllowOrigin)
}

// ProvideHealthHandler probes every backing store that is configured.
func ProvideHealthHandler(c cache.Service, ch *pkgch.Client, registry *internalrepo.SQLRunRegistry) *api.HealthHandler {
	checks := map[string]api.HealthCheck{"cache": c.Ping}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if registry != nil {
		checks["registry"] = registry.Ping
	}
	return api.NewHealthHandler(checks)
}

func ProvideHTTPServer(
	cfg *config.Config,
	reg *prometheus.Registry,
	l *applogger.Logger,
	pipeline *api.PipelineEchoHandler,
	health *api.HealthHandler,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{pipeline, health},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigin),
		xhttp.WithMetrics(metricsPath, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	pipe *mid.EventPipeline,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, l, srv, consumer, pipe, limiter)
}
