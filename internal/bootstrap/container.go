package bootstrap

import (
	"context"
	"log"
	"time"

	"oncare-chatbot-be/internal/config"
	"oncare-chatbot-be/internal/controller"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/handler"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/internal/repository/memory"
	"oncare-chatbot-be/internal/repository/unitofwork"
	"oncare-chatbot-be/internal/service"
	"oncare-chatbot-be/internal/websocket"
	"oncare-chatbot-be/pkg/chunker"
	"oncare-chatbot-be/pkg/embedding"
	"oncare-chatbot-be/pkg/embedding/jina"
	"oncare-chatbot-be/pkg/llm/factory"
	"oncare-chatbot-be/pkg/rag/composer"
	"oncare-chatbot-be/pkg/rag/gate"
	"oncare-chatbot-be/pkg/rag/guardrail"
	"oncare-chatbot-be/pkg/rag/index"
	"oncare-chatbot-be/pkg/rag/pipeline"
	"oncare-chatbot-be/pkg/rag/retriever"
	"oncare-chatbot-be/pkg/source"

	pktNats "oncare-chatbot-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const reindexCooldown = time.Minute

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// Core components (exposed for the CLI tools)
	Index            index.Index
	Retriever        *retriever.HybridRetriever
	Gate             *gate.ConfidenceGate
	Pipeline         *pipeline.Pipeline
	IngestionService service.IIngestionService

	// Background Services (Exposed for main.go to run)
	ConsumerService      service.IConsumerService
	DocumentEventService *service.DocumentEventService
	Guardrail            *guardrail.Classifier

	// WebSockets
	ChatSocketHandler *handler.ChatSocketHandler
	WebSocketHub      *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil, in which case the index lives in memory.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Index & Embeddings
	var idx index.Index
	if db != nil {
		idx = index.NewPostgresIndex(unitofwork.NewRepositoryFactory(db), cfg.Database.EfSearch)
		log.Printf("[INFO] Using Index: POSTGRES (pgvector, ef_search=%d)", cfg.Database.EfSearch)
	} else {
		idx = index.NewMemoryIndex(entity.EmbeddingDimension)
		log.Printf("[WARN] No database configured, using in-memory index")
	}
	c.Index = idx

	embeddingProvider := newEmbeddingProvider(cfg)

	// 4. LLM
	llmProvider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  llmBaseURL(cfg),
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 5. Infrastructure
	// NATS
	var eventPublisher service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.closers = append(c.closers, natsSub.Close)
	}

	// Redis
	rdb := connectRedis(cfg.App.RedisURL)

	// 6. Read path
	guardrailOpts := []guardrail.Option{}
	if cfg.Rag.GuardrailPatternsPath != "" {
		guardrailOpts = append(guardrailOpts, guardrail.WithOverrideFile(cfg.Rag.GuardrailPatternsPath))
	}
	if cfg.Rag.GuardrailModelCheck {
		guardrailOpts = append(guardrailOpts, guardrail.WithModelChecker(guardrail.NewLLMChecker(llmProvider)))
	}
	classifier, err := guardrail.NewClassifier(sysLogger, guardrailOpts...)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load guardrail patterns: %v", err)
	}
	c.Guardrail = classifier

	reindexPublisher := service.NewPublisherService(cfg.Topics.ReindexTopic, pubSub)
	reporter := service.NewReindexReporter(reindexPublisher, reindexCooldown, sysLogger)

	c.Retriever = retriever.NewHybridRetriever(idx, embeddingProvider, reporter, retriever.Config{
		TopK:                  cfg.Rag.TopK,
		OverFetch:             cfg.Rag.OverFetch,
		RRFK:                  cfg.Rag.RRFK,
		Mode:                  retriever.FusionMode(cfg.Rag.FusionMode),
		VectorWeight:          cfg.Rag.VectorWeight,
		KeywordWeight:         cfg.Rag.KeywordWeight,
		VectorSimilarityFloor: cfg.Rag.VectorSimilarityFloor,
	}, sysLogger)
	c.Gate = gate.NewConfidenceGate(cfg.Rag.MinFusedScore, cfg.Rag.MinKeywordCoverage)

	answerComposer := composer.NewAnswerComposer(llmProvider, composer.Config{
		MaxContextChars: cfg.Rag.MaxContextChars,
		Timeout:         cfg.Ai.LLMTimeout,
		Temperature:     cfg.Ai.Temperature,
	}, sysLogger)

	var answerCache pipeline.AnswerCache
	if rdb != nil {
		answerCache = pipeline.NewRedisAnswerCache(rdb, "", cfg.Rag.AnswerCacheTTL)
		log.Printf("[INFO] Using Answer Cache: REDIS")
	} else {
		answerCache = memory.NewAnswerCacheRepository(cfg.Rag.AnswerCacheTTL)
		log.Printf("[INFO] Using Answer Cache: IN-MEMORY")
	}

	c.Pipeline = pipeline.NewPipeline(classifier, c.Retriever, c.Gate, answerComposer, answerCache, cfg.Rag.TopK, sysLogger)

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/chat_socket.log")
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)

	// 7. Write path
	ingestionService := service.NewIngestionService(
		idx,
		chunker.New(chunker.WithTokenBand(cfg.Rag.ChunkMinTokens, cfg.Rag.ChunkMaxTokens)),
		embeddingProvider,
		source.NewHTTPSource(cfg.Source.ScraperBaseURL),
		service.NewCorpusNotifier(c.Pipeline, c.WebSocketHub),
		eventPublisher,
		service.IngestionConfig{
			Workers:          cfg.Rag.IngestWorkers,
			EmbedConcurrency: cfg.Rag.EmbedConcurrency,
		},
		sysLogger,
	)
	c.IngestionService = ingestionService

	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.Topics.IngestTopic,
		cfg.Topics.ReindexTopic,
		ingestionService,
		sysLogger,
	)

	if natsSub != nil {
		ingestPublisher := service.NewPublisherService(cfg.Topics.IngestTopic, pubSub)
		c.DocumentEventService = service.NewDocumentEventService(natsSub, ingestPublisher, sysLogger)
	}

	chatService := service.NewChatService(c.Pipeline, idx, eventPublisher, sysLogger)

	// 8. Controllers & Handlers
	c.ChatController = controller.NewChatController(chatService)
	c.DocumentController = controller.NewDocumentController(ingestionService)
	c.ChatSocketHandler = handler.NewChatSocketHandler(chatService, c.WebSocketHub, wsLogger)

	return c
}

// Close releases broker connections and flushes the logger.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}

func newEmbeddingProvider(cfg *config.Config) embedding.EmbeddingProvider {
	if cfg.Ai.EmbeddingProvider == "lexical" {
		log.Printf("[INFO] Using Embedding Provider: LEXICAL (offline)")
		return embedding.NewLexicalProvider(entity.EmbeddingDimension)
	}

	var base embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		base = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbeddingModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		base = jina.NewJinaProvider(cfg.Keys.Jina)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		base = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	resilient := embedding.NewResilientProvider(base, embedding.ResilientConfig{
		Dimension:         entity.EmbeddingDimension,
		MaxConcurrency:    int64(cfg.Rag.EmbedConcurrency),
		RequestsPerSecond: cfg.Rag.EmbedRatePerSecond,
		MaxRetries:        uint(cfg.Rag.EmbedMaxRetries),
	})
	return embedding.NewCachedProvider(resilient, cfg.Rag.EmbedCacheSize, time.Hour)
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMProvider == "huggingface" {
		return cfg.Ai.HuggingFaceBaseURL
	}
	return cfg.Ai.OllamaBaseURL
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "gemini":
		return cfg.Keys.GoogleGemini
	case "huggingface":
		return cfg.Keys.HuggingFace
	}
	return ""
}

// connectRedis returns nil when Redis is unreachable so callers fall back to in-process state.
func connectRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb.Close()
		return nil
	}
	return rdb
}
