package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"news-orchestrator/internal/adapter/graphstore"
	"news-orchestrator/internal/adapter/rag_augur"
	rag_http "news-orchestrator/internal/adapter/rag_http"
	"news-orchestrator/internal/adapter/repository"
	"news-orchestrator/internal/adapter/summarystore"
	"news-orchestrator/internal/adapter/vectorindex"
	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/infra"
	"news-orchestrator/internal/infra/config"
	"news-orchestrator/internal/infra/httpclient"
	"news-orchestrator/internal/infra/metrics"
	"news-orchestrator/internal/session"
	"news-orchestrator/internal/usecase"
	"news-orchestrator/internal/worker"
)

// Backends are the opened store connections. Pool is nil unless the pgvector index is used.
type Backends struct {
	Graph neo4j.DriverWithContext
	Mongo *mongo.Client
	Pool  *pgxpool.Pool
}

// Close releases every opened connection.
func (b Backends) Close(ctx context.Context) error {
	var errs []error
	if b.Graph != nil {
		errs = append(errs, b.Graph.Close(ctx))
	}
	if b.Mongo != nil {
		errs = append(errs, b.Mongo.Disconnect(ctx))
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
	return errors.Join(errs...)
}

// ConnectBackends opens the graph and summary stores and, for the pgvector backend, PostgreSQL.
func ConnectBackends(ctx context.Context, cfg *config.Config) (Backends, error) {
	var b Backends

	driver, err := infra.NewNeo4jDriver(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password)
	if err != nil {
		return b, err
	}
	b.Graph = driver

	client, err := infra.NewMongoClient(ctx, cfg.Summary.URI)
	if err != nil {
		_ = b.Close(ctx)
		return Backends{}, err
	}
	b.Mongo = client

	if cfg.Index.Backend == config.IndexBackendPgvector {
		pool, err := infra.NewPostgresDB(ctx, cfg.DB.DSN(), infra.PoolConfig{
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			_ = b.Close(ctx)
			return Backends{}, err
		}
		b.Pool = pool
	}
	return b, nil
}

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Adapters
	LLM       domain.LLMClient
	Encoder   domain.VectorEncoder
	Index     domain.EmbeddingIndex
	Snapshot  *vectorindex.Snapshot
	Graph     domain.StructuredStore
	Summaries domain.SummaryStore

	// Usecases
	RetrieveUsecase usecase.RetrieveEvidenceUsecase
	AnswerUsecase   usecase.AnswerQueryUsecase

	// Sessions
	Sessions *session.Manager
	Reaper   *worker.SessionReaper

	Metrics *metrics.Metrics
	Handler *rag_http.Handler
}

// NewApplicationComponents wires all dependencies from config and the opened backends.
// A snapshot that cannot be loaded is a startup error.
func NewApplicationComponents(cfg *config.Config, backends Backends, reg prometheus.Registerer, log *slog.Logger) (*ApplicationComponents, error) {
	m := metrics.New(reg)

	// Shared HTTP clients with connection pooling
	llmHTTP := httpclient.NewRateLimitedClient(time.Duration(cfg.LLM.Timeout)*time.Second, cfg.LLM.RatePerSecond, cfg.LLM.Burst)
	embedderHTTP := httpclient.NewPooledClient(time.Duration(cfg.Embedder.Timeout) * time.Second)

	// External clients
	generator := rag_augur.NewOllamaGenerator(cfg.LLM.URL, cfg.LLM.Model, llmHTTP, log, rag_augur.WithNumCtx(cfg.LLM.NumCtx))
	encoder, err := rag_augur.NewCachedEncoder(
		rag_augur.NewOllamaEmbedder(cfg.Embedder.URL, cfg.Embedder.Model, embedderHTTP, log,
			rag_augur.WithBatchSize(cfg.Embedder.BatchSize)),
		cfg.Embedder.CacheSize,
	)
	if err != nil {
		return nil, err
	}

	// Stores
	if backends.Graph == nil || backends.Mongo == nil {
		return nil, errors.New("graph and summary backends are required")
	}
	graph := graphstore.NewGateway(graphstore.NewNeo4jRunner(backends.Graph, cfg.Graph.Database), generator, log)
	summaries := summarystore.NewMongoGateway(
		backends.Mongo.Database(cfg.Summary.Database).Collection(cfg.Summary.Collection),
		log,
	)

	var (
		index    domain.EmbeddingIndex
		snapshot *vectorindex.Snapshot
	)
	switch cfg.Index.Backend {
	case config.IndexBackendPgvector:
		if backends.Pool == nil {
			return nil, errors.New("pgvector index requires a database pool")
		}
		index = repository.NewArticleEmbeddingRepository(backends.Pool, encoder, cfg.Embedder.Model, log)
	default:
		snapshot, err = vectorindex.LoadSnapshot(cfg.Index.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load embedding snapshot %s: %w", cfg.Index.SnapshotPath, err)
		}
		store, err := snapshot.Store()
		if err != nil {
			return nil, fmt.Errorf("failed to build embedding index: %w", err)
		}
		idx, err := vectorindex.NewIndex(store, encoder, snapshot.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		index = idx
		log.Info("embedding_snapshot_loaded",
			slog.String("path", cfg.Index.SnapshotPath),
			slog.String("model", snapshot.EmbeddingModel),
			slog.Int("records", len(snapshot.Records)))
	}

	// Usecase configs
	retrievalConfig := usecase.DefaultRetrievalConfig()
	retrievalConfig.TopK = cfg.Retrieval.TopK
	retrievalConfig.GatewayTimeout = time.Duration(cfg.Retrieval.GatewayTimeout) * time.Second
	retrievalConfig.MemoryLookupLimit = cfg.Retrieval.MemoryLookupLimit
	if len(cfg.Retrieval.StopWords) > 0 {
		retrievalConfig.StopWords = cfg.Retrieval.StopWords
	}
	classifierConfig := usecase.ClassifierConfig{
		FollowUpMode:        cfg.Classifier.FollowUpMode,
		SplitMode:           cfg.Classifier.SplitMode,
		SimilarityThreshold: cfg.Classifier.SimilarityThreshold,
		Timeout:             time.Duration(cfg.Classifier.Timeout) * time.Second,
	}
	groundingConfig := usecase.GroundingConfig{
		Enabled:   cfg.Validator.Enabled,
		Timeout:   time.Duration(cfg.Validator.Timeout) * time.Second,
		MaxTokens: cfg.Validator.MaxTokens,
	}
	if err := errors.Join(retrievalConfig.Validate(), classifierConfig.Validate(), groundingConfig.Validate()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Usecases
	classifier, err := usecase.NewQueryClassifierFromConfig(classifierConfig, generator, log)
	if err != nil {
		return nil, err
	}
	followUpSplitter, err := usecase.NewIntentSplitterFromConfig(classifierConfig, generator)
	if err != nil {
		return nil, err
	}
	retrieveUsecase := usecase.NewRetrieveEvidenceUsecase(
		graph, summaries, index, retrievalConfig, log,
		usecase.WithRetrieveObserver(m),
	)
	composer := usecase.NewAnswerComposer(usecase.NewXMLPromptBuilder(), generator, cfg.LLM.MaxTokens, log)
	validator := usecase.NewGroundingValidator(generator, groundingConfig, log)
	answerUsecase := usecase.NewAnswerQueryUsecase(
		classifier, retrieveUsecase, composer, validator, retrievalConfig, log,
		usecase.WithAnswerObserver(m),
		usecase.WithFollowUpSplitter(followUpSplitter),
	)

	// Sessions
	sessions, err := session.NewManager(cfg.Session.Capacity, encoder, cfg.Session.MaxTurns, log,
		session.WithLiveSessionsHook(m.SetLiveSessions))
	if err != nil {
		return nil, err
	}
	var reaper *worker.SessionReaper
	if cfg.Session.IdleTimeout > 0 {
		reaper = worker.NewSessionReaper(sessions,
			time.Duration(cfg.Session.IdleTimeout)*time.Minute,
			time.Duration(cfg.Session.ReapInterval)*time.Second,
			log)
	}

	// HTTP
	handlerOpts := []rag_http.HandlerOption{
		rag_http.WithTurnRecorder(m.RecordTurn),
		rag_http.WithReadinessCheck("graph", backends.Graph.VerifyConnectivity),
		rag_http.WithReadinessCheck("summaries", func(ctx context.Context) error {
			return backends.Mongo.Ping(ctx, readpref.Primary())
		}),
	}
	if backends.Pool != nil {
		handlerOpts = append(handlerOpts, rag_http.WithReadinessCheck("index", backends.Pool.Ping))
	}
	handler := rag_http.NewHandler(answerUsecase, sessions, log, handlerOpts...)

	return &ApplicationComponents{
		LLM:             generator,
		Encoder:         encoder,
		Index:           index,
		Snapshot:        snapshot,
		Graph:           graph,
		Summaries:       summaries,
		RetrieveUsecase: retrieveUsecase,
		AnswerUsecase:   answerUsecase,
		Sessions:        sessions,
		Reaper:          reaper,
		Metrics:         m,
		Handler:         handler,
	}, nil
}
