package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"docrag-platform/internal/ai"
	"docrag-platform/internal/config"
	"docrag-platform/internal/logger"
	"docrag-platform/internal/telemetry"
	"docrag-platform/middleware"
	"docrag-platform/routes"
	"docrag-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("docrag-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis is optional: without it rate limiting, the redis session store
	// and background ingestion are simply off.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, running degraded", "error", err)
		rdb = nil
	}

	// Generation providers, in selection precedence order.
	providers := buildProviders(cfg)
	orchestrator, err := ai.NewOrchestrator(providers...)
	if err != nil {
		log.Fatal("No generation providers came up:", err)
	}

	embedder, err := ai.NewEmbeddingService(cfg.GeminiAPIKey, cfg.VectorDim)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	defer embedder.Close()
	if !embedder.IsAvailable() {
		logger.Warn("Embeddings unconfigured, retrieval disabled")
	}

	vectors := services.NewVectorStore(db, cfg.VectorCollection, cfg.VectorIndexName, cfg.VectorDim, metrics)
	if err := vectors.EnsureIndex(context.Background()); err != nil {
		// Dimension mismatch or index bootstrap failure is fatal: writing
		// vectors of the wrong width would poison every search.
		log.Fatal("Vector index bootstrap failed:", err)
	}

	sessions := buildSessionStore(cfg, rdb)

	pipeline := services.NewRAGPipeline(embedder, vectors, orchestrator, sessions, services.PipelineConfig{
		SearchLimit:      cfg.SearchLimit,
		SearchThreshold:  cfg.SearchThreshold,
		HistoryWindow:    cfg.ContextHistoryWindow,
		MaxMessageLength: cfg.MaxMessageLength,
		AnswerLanguage:   cfg.AnswerLanguage,
		DefaultModel:     cfg.DefaultProvider,
	})

	var asynqClient *asynq.Client
	if rdb != nil {
		redisOpt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			logger.Warn("Background ingestion disabled", "error", err)
		} else {
			asynqClient = asynq.NewClient(redisOpt)
			defer asynqClient.Close()
		}
	}

	extractor := services.NewExtractionService()
	chunker := services.NewChunkerService(cfg.ChunkSize, cfg.ChunkOverlap)
	documents := services.NewDocumentService(db, extractor, chunker, embedder, vectors,
		asynqClient, cfg.SyncProcessingLimit, cfg.EmbeddingModel, metrics)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("docrag-platform"))
	router.Use(middleware.RequestIDMiddleware())
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupChatRoutes(router, pipeline, sessions, orchestrator, metrics)
	routes.SetupDocumentRoutes(router, documents, extractor, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "providers", orchestrator.Available())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if ms, ok := sessions.(*services.MemorySessionStore); ok {
		ms.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

// buildProviders constructs every provider with a credential, in precedence
// order: google, openai, anthropic, ollama. Unconfigured ones are skipped;
// LoadConfig has already guaranteed at least one credential exists.
func buildProviders(cfg *config.Config) []ai.Provider {
	var providers []ai.Provider

	if gemini, err := ai.NewGeminiProvider(cfg.GeminiAPIKey); err == nil {
		providers = append(providers, gemini)
	} else if cfg.GeminiAPIKey != "" {
		logger.Warn("Gemini provider failed to initialize", "error", err)
	}
	if openai, err := ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIAPIURL); err == nil {
		providers = append(providers, openai)
	}
	if anthropic, err := ai.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicAPIURL); err == nil {
		providers = append(providers, anthropic)
	}
	if ollama, err := ai.NewOllamaProvider(cfg.OllamaURL); err == nil {
		providers = append(providers, ollama)
	}

	return providers
}

// buildSessionStore picks the session backend. Redis keeps history across
// instances; memory is the default single-process store with its own sweep.
func buildSessionStore(cfg *config.Config, rdb *redis.Client) services.SessionStore {
	if cfg.SessionStore == "redis" && rdb != nil {
		logger.Info("Using redis session store")
		return services.NewRedisSessionStore(rdb, cfg.SessionTTL, cfg.SessionHistoryCap)
	}
	if cfg.SessionStore == "redis" {
		logger.Warn("Redis session store requested but redis is down, falling back to memory")
	}
	store := services.NewMemorySessionStore(cfg.SessionTTL, cfg.SessionSweepInterval, cfg.SessionHistoryCap)
	store.Start()
	return store
}
