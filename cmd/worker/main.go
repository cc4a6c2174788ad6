package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/agent"
	"github.com/feichai0017/rag-service/internal/agent/llm"
	"github.com/feichai0017/rag-service/internal/app"
	"github.com/feichai0017/rag-service/internal/service/document"
	"github.com/feichai0017/rag-service/internal/service/qa"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/vectorindex"
	"github.com/feichai0017/rag-service/pkg/converters"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := app.NewLogger(cfg, "worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize runtime", logger.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	if err := store.Migrate(rt.DB); err != nil {
		log.Error("Failed to migrate database", logger.Error(err))
		os.Exit(1)
	}

	probeModels(ctx, cfg, log)

	provider, err := llm.NewOllamaProvider(cfg.LLM)
	if err != nil {
		log.Error("Failed to create language model provider", logger.Error(err))
		os.Exit(1)
	}

	index, err := vectorindex.New(ctx, cfg.Vector, provider.Embedder(), log)
	if err != nil {
		log.Error("Failed to create vector index", logger.Error(err))
		os.Exit(1)
	}
	defer index.Close()
	if cfg.Vector.Type == vectorindex.TypeMemory {
		log.Warn("Using the in-memory vector index, collections are lost on restart and not shared with other workers")
	}

	factory := agent.NewProcessorFactory(log)
	defer factory.Close()

	ingestor := document.NewIngestor(
		rt.Documents,
		rt.Storage,
		factory,
		agent.NewChunker(cfg.Vector.ChunkSize, cfg.Vector.ChunkOverlap),
		index,
		log,
	)
	answerer := qa.NewAnswerer(
		rt.Questions,
		rt.Documents,
		index,
		llm.NewGenerator(provider.Model(), cfg.Vector.TopK),
		converters.NewCitationConverter(cfg.LLM.PreviewLength),
		log,
	)

	taskWorker := worker.NewTaskWorker(&worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
		Queues:        cfg.Worker.Queues,
	}, ingestor, answerer, log)

	if err := taskWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.Int("concurrency", cfg.Worker.Concurrency))

	<-ctx.Done()

	log.Info("Shutting down worker...")
	taskWorker.Stop()
	log.Info("Worker stopped")
}

// probeModels warns when the configured models are not pulled on the Ollama server.
func probeModels(ctx context.Context, cfg *config.Config, log logger.Logger) {
	missing, err := llm.NewOllamaClient(cfg.LLM.ServerURL).MissingModels(ctx, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
	if err != nil {
		log.Warn("Could not reach Ollama to check models", logger.Error(err))
		return
	}
	for _, m := range missing {
		log.Warn("Model is not available on the Ollama server", logger.String("model", m))
	}
}
