package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Rag      RagConfig
	Topics   TopicConfig
	Source   SourceConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection     string
	LogLevel       string
	HNSWM          int
	EfConstruction int
	EfSearch       int
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	HuggingFace  string
}

type AIConfig struct {
	EmbeddingProvider    string // "gemini", "ollama", "jina" or "lexical"
	LLMProvider          string // "ollama", "gemini" or "huggingface"
	LLMModel             string
	OllamaBaseURL        string
	OllamaEmbeddingModel string
	HuggingFaceBaseURL   string
	LLMTimeout           time.Duration
	Temperature          float64
}

type RagConfig struct {
	TopK                  int
	OverFetch             int
	RRFK                  int
	FusionMode            string
	VectorWeight          float64
	KeywordWeight         float64
	VectorSimilarityFloor float64
	MinFusedScore         float64
	MinKeywordCoverage    float64
	ChunkMinTokens        int
	ChunkMaxTokens        int
	MaxContextChars       int
	EmbedConcurrency      int
	EmbedRatePerSecond    float64
	EmbedMaxRetries       int
	IngestWorkers         int
	AnswerCacheTTL        time.Duration
	EmbedCacheSize        int
	GuardrailPatternsPath string
	GuardrailModelCheck   bool
}

type TopicConfig struct {
	IngestTopic  string
	ReindexTopic string
}

type SourceConfig struct {
	ScraperBaseURL string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection:     getEnv("DB_CONNECTION_STRING", ""),
			LogLevel:       getEnv("DB_LOG_LEVEL", "warn"),
			HNSWM:          getEnvAsInt("HNSW_M", 16),
			EfConstruction: getEnvAsInt("HNSW_EF_CONSTRUCTION", 64),
			EfSearch:       getEnvAsInt("HNSW_EF_SEARCH", 40),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider:    getEnv("EMBEDDING_PROVIDER", "gemini"),
			LLMProvider:          getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:             getEnv("LLM_MODEL", "qwen2.5"),
			OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaEmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			HuggingFaceBaseURL:   getEnv("HUGGINGFACE_BASE_URL", ""),
			LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			Temperature:          getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		},
		Rag: RagConfig{
			TopK:                  getEnvAsInt("RAG_TOP_K", 5),
			OverFetch:             getEnvAsInt("RAG_OVER_FETCH", 3),
			RRFK:                  getEnvAsInt("RAG_RRF_K", 60),
			FusionMode:            getEnv("RAG_FUSION_MODE", "rrf"),
			VectorWeight:          getEnvAsFloat("RAG_VECTOR_WEIGHT", 0.7),
			KeywordWeight:         getEnvAsFloat("RAG_KEYWORD_WEIGHT", 0.3),
			VectorSimilarityFloor: getEnvAsFloat("RAG_VECTOR_SIMILARITY_FLOOR", 0.40),
			MinFusedScore:         getEnvAsFloat("RAG_MIN_FUSED_SCORE", 0.25),
			MinKeywordCoverage:    getEnvAsFloat("RAG_MIN_KEYWORD_COVERAGE", 0.5),
			ChunkMinTokens:        getEnvAsInt("RAG_CHUNK_MIN_TOKENS", 150),
			ChunkMaxTokens:        getEnvAsInt("RAG_CHUNK_MAX_TOKENS", 400),
			MaxContextChars:       getEnvAsInt("RAG_MAX_CONTEXT_CHARS", 6000),
			EmbedConcurrency:      getEnvAsInt("RAG_EMBED_CONCURRENCY", 4),
			EmbedRatePerSecond:    getEnvAsFloat("RAG_EMBED_RATE_PER_SECOND", 10),
			EmbedMaxRetries:       getEnvAsInt("RAG_EMBED_MAX_RETRIES", 4),
			IngestWorkers:         getEnvAsInt("RAG_INGEST_WORKERS", 4),
			AnswerCacheTTL:        getEnvAsDuration("RAG_ANSWER_CACHE_TTL", 300*time.Second),
			EmbedCacheSize:        getEnvAsInt("RAG_EMBED_CACHE_SIZE", 256),
			GuardrailPatternsPath: getEnv("GUARDRAIL_PATTERNS_PATH", ""),
			GuardrailModelCheck:   getEnvAsBool("GUARDRAIL_MODEL_CHECK", false),
		},
		Topics: TopicConfig{
			IngestTopic:  getEnv("INGEST_DOCUMENT_TOPIC_NAME", "INGEST_DOCUMENT"),
			ReindexTopic: getEnv("REINDEX_DOCUMENT_TOPIC_NAME", "REINDEX_DOCUMENT"),
		},
		Source: SourceConfig{
			ScraperBaseURL: getEnv("SCRAPER_BASE_URL", "http://localhost:8000"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
