package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	OpenAIAPIKey string  `envconfig:"OPENAI_API_KEY"`
	ChatModel    string  `envconfig:"CHAT_MODEL" default:"gpt-3.5-turbo"`
	EmbedModel   string  `envconfig:"EMBED_MODEL" default:"text-embedding-3-small"`
	Temperature  float32 `envconfig:"TEMPERATURE" default:"0"`

	ChunkMaxTokens     int `envconfig:"CHUNK_MAX_TOKENS" default:"900"`
	ChunkOverlapTokens int `envconfig:"CHUNK_OVERLAP_TOKENS" default:"100"`
	RetrievalTopK      int `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	MemoryTokenBudget  int `envconfig:"MEMORY_TOKEN_BUDGET" default:"2000"`

	SessionTTLMinutes int `envconfig:"SESSION_TTL_MINUTES" default:"120"`

	// Optional pgvector-backed chunk index for large batches; the
	// in-memory index is used when unset.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	Neo4jURL      string `envconfig:"NEO4J_URL"`
	Neo4jUsername string `envconfig:"NEO4J_USERNAME"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DIRCHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasNeo4j() bool {
	return c.Neo4jURL != ""
}
