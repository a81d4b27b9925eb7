package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlerConfig bounds domain crawling.
type CrawlerConfig struct {
	MaxPages          int    `yaml:"max_pages"`
	CrawlDelayMillis  int    `yaml:"crawl_delay_millis"`
	MaxContentLength  int    `yaml:"max_content_length"`
	FetchTimeoutSecs  int    `yaml:"fetch_timeout_secs"`
	RenderTimeoutSecs int    `yaml:"render_timeout_secs"`
	UserAgent         string `yaml:"user_agent"`
}

func (c CrawlerConfig) CrawlDelay() time.Duration {
	return time.Duration(c.CrawlDelayMillis) * time.Millisecond
}

func (c CrawlerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

func (c CrawlerConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSecs) * time.Second
}

// ChunkingConfig is one token-window chunking profile. The web and
// document pipelines each get their own profile and are not
// interchangeable.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// LLMConfig configures one OpenAI-compatible or ollama endpoint.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}

// ChatConfig bounds chat behavior per session.
type ChatConfig struct {
	ContextChunks   int `yaml:"context_chunks"`
	MaxHistoryTurns int `yaml:"max_history_turns"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Crawler     CrawlerConfig     `yaml:"crawler"`
	WebChunking ChunkingConfig    `yaml:"web_chunking"`
	DocChunking ChunkingConfig    `yaml:"doc_chunking"`
	EmbedLLM    LLMConfig         `yaml:"embedding"`
	ChatLLM     LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chat        ChatConfig        `yaml:"chat"`
	Server      ServerConfig      `yaml:"server"`
}

// LoadConfig reads a YAML config from path. A missing file is not an
// error; it yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = 25
	}
	if cfg.Crawler.CrawlDelayMillis == 0 {
		cfg.Crawler.CrawlDelayMillis = 1000
	}
	if cfg.Crawler.MaxContentLength == 0 {
		cfg.Crawler.MaxContentLength = 10000
	}
	if cfg.Crawler.FetchTimeoutSecs == 0 {
		cfg.Crawler.FetchTimeoutSecs = 10
	}
	if cfg.Crawler.RenderTimeoutSecs == 0 {
		cfg.Crawler.RenderTimeoutSecs = 15
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = "domain-intel/1.0"
	}
	if cfg.WebChunking.ChunkSize == 0 {
		cfg.WebChunking.ChunkSize = 1000
	}
	if cfg.WebChunking.ChunkOverlap == 0 {
		cfg.WebChunking.ChunkOverlap = 200
	}
	if cfg.DocChunking.ChunkSize == 0 {
		cfg.DocChunking.ChunkSize = 300
	}
	if cfg.DocChunking.ChunkOverlap == 0 {
		cfg.DocChunking.ChunkOverlap = 60
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "openai"
	}
	if cfg.ChatLLM.BaseURL == "" {
		cfg.ChatLLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./storage/chromem"
	}
	if cfg.Chat.ContextChunks == 0 {
		cfg.Chat.ContextChunks = 5
	}
	if cfg.Chat.MaxHistoryTurns == 0 {
		cfg.Chat.MaxHistoryTurns = 20
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}
