package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI  LLMProvider = "openai"
	ProviderYandex  LLMProvider = "yandex"
	ProviderBedrock LLMProvider = "bedrock"
)

type Config struct {
	// HTTP
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	AWSRegion        string      `env:"AWS_REGION" envDefault:"us-east-1"`
	BedrockModel     string      `env:"BEDROCK_MODEL" envDefault:"anthropic.claude-3-haiku-20240307-v1:0"`
	// Optional static AWS keys; the default credential chain is used otherwise.
	AWSAccessKeyID     string `env:"PORTAL_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"PORTAL_AWS_SECRET_ACCESS_KEY"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Agents
	AgentsFilePath string   `env:"AGENTS_FILE_PATH" envDefault:"configs/agents.yaml"`
	DefaultAgent   string   `env:"DEFAULT_AGENT" envDefault:"portal-assistant"`
	MCPServers     []string `env:"MCP_SERVERS" envSeparator:","`

	// Session store
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"data/portal-chat.db"`

	// Cache
	CacheBackend     string        `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheReadTimeout time.Duration `env:"CACHE_READ_TIMEOUT" envDefault:"1s"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	CacheS3Bucket    string        `env:"CACHE_S3_BUCKET"`
	CacheS3Prefix    string        `env:"CACHE_S3_PREFIX" envDefault:"portal-chat/cache/"`

	// Storage
	LogFilePath    string `env:"LOG_FILE_PATH" envDefault:"logs/turns.jsonl"`
	TokensFilePath string `env:"TOKENS_FILE_PATH" envDefault:"data/tokens.json"`
	// name:token pairs merged into the token registry at startup
	StaticTokens  map[string]string `env:"STATIC_TOKENS" envSeparator:","`
	HistoryWindow int               `env:"HISTORY_WINDOW" envDefault:"40"`

	// Jobs
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"24h"`
	ReaperSchedule     string        `env:"REAPER_SCHEDULE" envDefault:"*/15 * * * *"`
	ReportSchedule     string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`
	// picks up tokens granted or revoked with cmd/tokens
	TokenReloadSchedule string `env:"TOKEN_RELOAD_SCHEDULE" envDefault:"* * * * *"`
}

// ClientConfig is read by the chat front ends (terminal and Telegram).
type ClientConfig struct {
	ServerURL     string `env:"PORTAL_CHAT_URL" envDefault:"http://localhost:8080"`
	Token         string `env:"PORTAL_CHAT_TOKEN"`
	Agent         string `env:"PORTAL_CHAT_AGENT" envDefault:"portal-assistant"`
	TranscriptDir string `env:"TRANSCRIPT_DIR" envDefault:"data/transcripts"`

	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	MessageParseMode string  `env:"MESSAGE_PARSE_MODE" envDefault:""`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func NewClient() *ClientConfig {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse client config: %v", err)
	}
	return cfg
}
