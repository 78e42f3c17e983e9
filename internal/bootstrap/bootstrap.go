package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/ports"
	"github.com/corpusqa/corpusqa/internal/core/usecase"
	"github.com/corpusqa/corpusqa/internal/infrastructure/llm/ollama"
	natsqueue "github.com/corpusqa/corpusqa/internal/infrastructure/queue/nats"
	"github.com/corpusqa/corpusqa/internal/infrastructure/repository/postgres"
	"github.com/corpusqa/corpusqa/internal/infrastructure/rerank"
	"github.com/corpusqa/corpusqa/internal/infrastructure/resilience"
	"github.com/corpusqa/corpusqa/internal/infrastructure/sanitize"
	"github.com/corpusqa/corpusqa/internal/infrastructure/session"
	"github.com/corpusqa/corpusqa/internal/infrastructure/vector/qdrant"
	"github.com/corpusqa/corpusqa/internal/observability/metrics"
)

// App wires the full query-serving stack: Postgres chunk store and lexical
// index, Qdrant vector index, Ollama embedding and generation, optional
// reranker and NATS eventing, sessions, and the pipeline use cases.
type App struct {
	Config  config.Config
	Service *usecase.SessionService
	Metrics *metrics.Metrics

	closeFn func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	chunkRepo := postgres.NewChunkRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	generationExecutor := resilience.NewExecutor(resilience.GenerationConfig(), logger)

	embedClient := ollama.New(cfg.Ollama, executor)
	genClient := ollama.New(cfg.Ollama, generationExecutor)
	embedder := ollama.NewEmbedder(embedClient)
	generator := ollama.NewGenerator(genClient)

	vectorIndex := qdrant.New(cfg.Qdrant, executor)

	var reranker ports.Reranker
	if cfg.Rerank.Enabled {
		reranker = rerank.New(cfg.Rerank)
	}

	var events ports.EventPublisher
	var publisher *natsqueue.Publisher
	if cfg.NATS.Enabled {
		publisher, err = natsqueue.New(cfg.NATS.URL, cfg.NATS.Subject, natsqueue.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init nats publisher: %w", err)
		}
		events = publisher
	}

	redactor := sanitize.NewRedactor()
	sessions := session.NewStore(cfg.Session.MaxMessages)
	m := metrics.New("corpusqa-api")

	rewriter := usecase.NewQueryRewriter(generator, cfg.History.MaxTurns, cfg.History.RewriteTimeout(), logger)
	retriever := usecase.NewHybridRetriever(embedder, vectorIndex, chunkRepo, cfg.Retrieval, logger)
	gate := usecase.NewAnswerabilityGate(chunkRepo, reranker, redactor, cfg.Gate, cfg.Rerank, logger)
	composer := usecase.NewResponseComposer(generator, redactor, logger)
	orchestrator := usecase.NewQueryOrchestrator(rewriter, retriever, gate, composer, m, logger)
	service := usecase.NewSessionService(orchestrator, sessions, events, logger)

	return &App{
		Config:  cfg,
		Service: service,
		Metrics: m,

		closeFn: func() {
			if publisher != nil {
				publisher.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
