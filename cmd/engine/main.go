package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/channel"
	"github.com/helpdeck-io/triage-engine/internal/classifier"
	"github.com/helpdeck-io/triage-engine/internal/draft"
	"github.com/helpdeck-io/triage-engine/internal/engine"
	"github.com/helpdeck-io/triage-engine/internal/knowledge"
	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/queue"
	"github.com/helpdeck-io/triage-engine/internal/router"
	"github.com/helpdeck-io/triage-engine/internal/storage"
	"github.com/helpdeck-io/triage-engine/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage and the job queue on the same backend
	var store storage.Storage
	var jobs queue.Queue
	var pgJobs *queue.PostgresQueue
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
		jobs = queue.NewMemoryQueue(cfg.Queue.MaxAttempts)
	} else {
		logger.Info("Using PostgreSQL storage")
		pg, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		store = pg

		pgJobs, err = queue.NewPostgresQueue(pg.DB(), cfg.Queue.MaxAttempts, logger)
		if err != nil {
			logger.Fatal("Failed to initialize job queue", zap.Error(err))
		}
		jobs = pgJobs
	}
	defer store.Close()

	// Initialize the LLM client used for both completion and embeddings
	llmClient := llm.NewOpenAI(cfg.OpenAI.APIKey, llm.Options{
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		Temperature:    cfg.OpenAI.Temperature,
		Timeout:        cfg.OpenAI.Timeout,
	}, logger)

	// Assemble the pipeline
	events := notify.NewBroadcaster(logger)
	cl := classifier.New(store, llmClient, router.NewRouter(store, logger), events, classifier.Options{
		AutoAssignThreshold: cfg.Routing.AutoAssignThreshold,
		TopAgentsPerTeam:    cfg.Routing.TopAgentsPerTeam,
		MaxTokens:           cfg.OpenAI.MaxTokens,
		Temperature:         cfg.OpenAI.Temperature,
	}, logger)
	retriever := knowledge.NewRetriever(store, llmClient, knowledge.RetrieverOptions{
		TopK:         cfg.Retrieval.TopK,
		MinRelevance: cfg.Retrieval.MinRelevance,
	}, logger)
	gen := draft.NewGenerator(store, retriever, llmClient, events, draft.GeneratorOptions{
		HistoryTurns:  cfg.Drafts.HistoryTurns,
		ExcerptLength: cfg.Drafts.ExcerptLength,
		MaxTokens:     cfg.OpenAI.MaxTokens,
		Temperature:   cfg.OpenAI.Temperature,
	}, logger)
	lifecycle := draft.NewLifecycle(store, events, logger)
	articles := knowledge.NewService(store, llmClient, logger)
	worker := queue.NewWorker(jobs, queue.WorkerOptions{
		PollInterval: cfg.Queue.PollInterval,
		BackoffBase:  cfg.Queue.BackoffBase,
		BackoffMax:   cfg.Queue.BackoffMax,
	}, logger)

	eng := engine.New(jobs, worker, cl, gen, lifecycle, articles, engine.Options{
		ClassifyWorkers: cfg.Queue.ClassifyWorkers,
		DraftWorkers:    cfg.Queue.DraftWorkers,
		DraftMaxAge:     cfg.Drafts.MaxAge,
		SweepInterval:   cfg.Drafts.SweepInterval,
	}, logger)
	eng.Start(ctx)

	// Return jobs orphaned by a crashed worker to the queue
	if pgJobs != nil {
		go requeueStuckJobs(ctx, pgJobs, cfg.Queue.StuckAfter, logger)
	}

	// Connect the Telegram channel when a token is configured
	var tg *channel.Telegram
	if cfg.Telegram.Token != "" {
		tg, err = channel.New(cfg.Telegram.Token, cfg.Telegram.AccountID, store, eng, events, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram channel", zap.Error(err))
		}
		tg.Start(ctx)
	} else {
		logger.Info("Telegram token not set, channel disabled")
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	if tg != nil {
		tg.Stop()
	}
	eng.Stop()
}

func requeueStuckJobs(ctx context.Context, jobs *queue.PostgresQueue, stuckAfter time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(stuckAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := jobs.RequeueStuck(ctx, stuckAfter); err != nil {
				logger.Error("Failed to requeue stuck jobs", zap.Error(err))
			}
		}
	}
}
