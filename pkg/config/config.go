package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Drafts    DraftsConfig    `mapstructure:"drafts"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type RoutingConfig struct {
	AutoAssignThreshold float64 `mapstructure:"auto_assign_threshold"`
	TopAgentsPerTeam    int     `mapstructure:"top_agents_per_team"`
}

type RetrievalConfig struct {
	TopK         int     `mapstructure:"top_k"`
	MinRelevance float64 `mapstructure:"min_relevance"`
}

type DraftsConfig struct {
	HistoryTurns  int           `mapstructure:"history_turns"`
	ExcerptLength int           `mapstructure:"excerpt_length"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type QueueConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	ClassifyWorkers int           `mapstructure:"classify_workers"`
	DraftWorkers    int           `mapstructure:"draft_workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	StuckAfter      time.Duration `mapstructure:"stuck_after"`
}

type TelegramConfig struct {
	Token     string `mapstructure:"token"`
	AccountID int64  `mapstructure:"account_id"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.max_tokens", 600)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.timeout", "30s")

	v.SetDefault("routing.auto_assign_threshold", 0.85)
	v.SetDefault("routing.top_agents_per_team", 3)

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.min_relevance", 0.7)

	v.SetDefault("drafts.history_turns", 10)
	v.SetDefault("drafts.excerpt_length", 400)
	v.SetDefault("drafts.max_age", "24h")
	v.SetDefault("drafts.sweep_interval", "1m")

	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.classify_workers", 4)
	v.SetDefault("queue.draft_workers", 2)
	v.SetDefault("queue.poll_interval", "500ms")
	v.SetDefault("queue.backoff_base", "2s")
	v.SetDefault("queue.backoff_max", "2m")
	v.SetDefault("queue.stuck_after", "5m")

	v.SetDefault("telegram.account_id", 1)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file when it exists; env and defaults cover the rest
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}
