package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"docrag-platform/internal/ai"
	"docrag-platform/internal/config"
	"docrag-platform/internal/logger"
	"docrag-platform/internal/queue"
	"docrag-platform/internal/telemetry"
	"docrag-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	// Embeddings are mandatory here: a worker that cannot embed cannot
	// process any document.
	embedder, err := ai.NewEmbeddingService(cfg.GeminiAPIKey, cfg.VectorDim)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	defer embedder.Close()
	if !embedder.IsAvailable() {
		log.Fatal("GEMINI_API_KEY is required for the ingestion worker")
	}

	vectors := services.NewVectorStore(db, cfg.VectorCollection, cfg.VectorIndexName, cfg.VectorDim, metrics)
	if err := vectors.EnsureIndex(context.Background()); err != nil {
		log.Fatal("Vector index bootstrap failed:", err)
	}

	extractor := services.NewExtractionService()
	chunker := services.NewChunkerService(cfg.ChunkSize, cfg.ChunkOverlap)
	documents := services.NewDocumentService(db, extractor, chunker, embedder, vectors,
		nil, cfg.SyncProcessingLimit, cfg.EmbeddingModel, metrics)

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	handler := queue.NewTaskHandler(documents)
	mux := asynq.NewServeMux()
	handler.Register(mux)

	logger.Info("Starting ingestion worker", "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
