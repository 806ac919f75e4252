package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	appsvc "docuquery/internal/app"
	"docuquery/internal/cache"
	"docuquery/internal/config"
	"docuquery/internal/embedding"
	"docuquery/internal/extract"
	"docuquery/internal/llm"
	"docuquery/internal/metrics"
	"docuquery/internal/model"
	"docuquery/internal/platform/logger"
	mysqlClient "docuquery/internal/platform/mysql"
	qdrantClient "docuquery/internal/platform/qdrant"
	rabbitmqClient "docuquery/internal/platform/rabbitmq"
	redisClient "docuquery/internal/platform/redis"
	"docuquery/internal/ratelimit"
	"docuquery/internal/repository"
	"docuquery/internal/storage"
	"docuquery/internal/vectorindex"
	"docuquery/internal/worker"
)

const (
	defaultOpenAIBaseURL  = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultOpenAIModel    = "gemini-2.0-flash"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

type App struct {
	Config  *config.Config
	Log     *logrus.Logger
	Metrics *metrics.Metrics

	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	VectorIndex vectorindex.Index
	Limiter     *ratelimit.Limiter

	Auth      *appsvc.AuthService
	Documents *appsvc.DocumentService
	Processor *appsvc.ProcessorService
	Queries   *appsvc.QueryService
	Usage     *appsvc.UsageService

	DocumentWorker *worker.DocumentProcessWorker

	closers   []io.Closer
	StartedAt time.Time
}

type options struct {
	withQueue bool
}

type Option func(*options)

// WithoutQueue skips RabbitMQ: no job publisher and no worker. Used by the
// admin CLI, which runs the processor in-process.
func WithoutQueue() Option {
	return func(o *options) { o.withQueue = false }
}

func New(ctx context.Context, opts ...Option) (*App, error) {
	o := options{withQueue: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Metrics: metrics.New(), StartedAt: time.Now()}
	if err := a.build(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Log.WithField("component", "gorm"))
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Organization{}, &model.User{}, &model.Document{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	index, err := a.newVectorIndex(ctx)
	if err != nil {
		return err
	}
	a.VectorIndex = index

	store, err := newFileStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	embedder := a.newEmbedder()
	generator := newGenerator(cfg.LLM)

	docRepo := repository.NewDocumentRepository(mysqlDB)
	orgRepo := repository.NewOrganizationRepository(mysqlDB)
	userRepo := repository.NewUserRepository(mysqlDB)

	processor, err := appsvc.NewProcessorService(
		docRepo,
		extract.New(store),
		embedder,
		index,
		appsvc.ProcessorConfig{
			ChunkSize:       cfg.Processing.ChunkSize,
			ChunkOverlap:    cfg.Processing.ChunkOverlap,
			ErrorMessageMax: cfg.Processing.ErrorMessageMax,
		},
		a.Metrics,
		a.Log.WithField("component", "processor"),
	)
	if err != nil {
		return err
	}
	a.Processor = processor

	a.Queries = appsvc.NewQueryService(
		cache.NewQueryCache(redisCli),
		embedder,
		index,
		generator,
		appsvc.QueryConfig{
			TopK:              cfg.Processing.TopK,
			CacheTTL:          time.Duration(cfg.Cache.QueryTTLSeconds) * time.Second,
			GenerationTimeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		},
		a.Metrics,
		a.Log.WithField("component", "query"),
	)

	a.Limiter = ratelimit.New(redisCli, cfg.RateLimit.QueriesPerHour)
	a.Auth = appsvc.NewAuthService(userRepo, orgRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.Usage = appsvc.NewUsageService(orgRepo, docRepo, a.Limiter, cfg.Processing.StorageLimitMB)

	var publisher appsvc.JobPublisher
	if o.withQueue {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		publisher = rabbitmqClient.NewJobPublisher(mqConn, cfg.RabbitMQ.ProcessQueue)

		a.DocumentWorker = worker.NewDocumentProcessWorker(
			mqConn,
			processor,
			cfg.RabbitMQ.ProcessQueue,
			cfg.RabbitMQ.WorkerConcurrency,
			a.Log.WithField("component", "worker"),
		)
		if err := a.DocumentWorker.Start(ctx); err != nil {
			return fmt.Errorf("start document worker failed: %w", err)
		}
	}

	a.Documents = appsvc.NewDocumentService(
		docRepo,
		orgRepo,
		store,
		index,
		publisher,
		appsvc.DocumentConfig{
			MaxUploadMB:    cfg.Processing.MaxUploadMB,
			StorageLimitMB: cfg.Processing.StorageLimitMB,
		},
		a.Log.WithField("component", "documents"),
	)
	return nil
}

func (a *App) newVectorIndex(ctx context.Context) (vectorindex.Index, error) {
	cfg := a.Config.VectorIndex
	switch cfg.Backend {
	case "qdrant":
		client, err := qdrantClient.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.APIKey, cfg.Qdrant.UseTLS)
		if err != nil {
			return nil, err
		}
		return vectorindex.NewQdrantIndex(client, cfg.Dimension, a.Log.WithField("component", "qdrant")), nil
	case "pgvector":
		return vectorindex.NewPGVectorIndex(ctx, cfg.PGVector.DSN, cfg.PGVector.Table, cfg.Dimension)
	case "memory":
		a.Log.Warn("using in-memory vector index; vectors are lost on restart")
		return vectorindex.NewMemoryIndex(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown vector index backend %q", cfg.Backend)
	}
}

func (a *App) newEmbedder() embedding.Embedder {
	cfg := a.Config.Embedding
	dim := a.Config.VectorIndex.Dimension
	if cfg.Provider == "openai" {
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
			Dimension: dim,
		}, nil)
	}
	e := embedding.NewONNXEmbedder(embedding.ONNXConfig{
		ModelPath: cfg.ONNXModelPath,
		VocabPath: cfg.ONNXVocabPath,
		LibPath:   cfg.ONNXLibPath,
		MaxSeqLen: cfg.MaxSeqLen,
		Dimension: dim,
	})
	a.closers = append(a.closers, e)
	return e
}

func newGenerator(cfg config.LLMConfig) llm.Generator {
	if cfg.Provider == "anthropic" {
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		return llm.NewAnthropicGenerator(llm.AnthropicConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
		})
	}
	baseURL, model := cfg.BaseURL, cfg.Model
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	// the query service bounds each call; this only guards stuck connections
	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds)*time.Second + 5*time.Second}
	return llm.NewOpenAIGenerator(llm.OpenAIConfig{
		BaseURL:   baseURL,
		APIKey:    cfg.APIKey,
		Model:     model,
		MaxTokens: cfg.MaxTokens,
	}, httpClient)
}

func newFileStore(ctx context.Context, cfg config.StorageConfig) (storage.FileStore, error) {
	if cfg.Backend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			KeyPrefix: cfg.S3KeyPrefix,
		})
	}
	return storage.NewLocalStore(cfg.LocalDir)
}

func (a *App) Close() error {
	var errs []error
	if a.DocumentWorker != nil {
		a.DocumentWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.VectorIndex != nil {
		if err := a.VectorIndex.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
