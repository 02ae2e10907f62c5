// Package config loads and validates chatbot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob of the crawl, index and serving pipeline.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Crawler      CrawlerConfig      `mapstructure:"crawler"`
	Corpus       CorpusConfig       `mapstructure:"corpus"`
	Chunking     ChunkingConfig     `mapstructure:"chunking"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	VectorStore  VectorStoreConfig  `mapstructure:"vectorstore"`
	Index        IndexConfig        `mapstructure:"index"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Assistant    AssistantConfig    `mapstructure:"assistant"`
	QuickAnswers QuickAnswersConfig `mapstructure:"quick_answers"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ChatRPS throttles POST /chat per client address; zero disables throttling.
	ChatRPS     float64  `mapstructure:"chat_rps"`
	ChatBurst   int      `mapstructure:"chat_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig toggles zap development features and optional file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// CrawlerConfig governs the frontier, fetcher and politeness behavior.
type CrawlerConfig struct {
	StartURL           string        `mapstructure:"start_url"`
	AllowedDomains     []string      `mapstructure:"allowed_domains"`
	PriorityPaths      []string      `mapstructure:"priority_paths"`
	UseSitemap         bool          `mapstructure:"use_sitemap"`
	MaxPages           int           `mapstructure:"max_pages"`
	MaxDepth           int           `mapstructure:"max_depth"`
	Delay              time.Duration `mapstructure:"delay"`
	UserAgent          string        `mapstructure:"user_agent"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BackoffInitial     time.Duration `mapstructure:"backoff_initial"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	DownloadDocuments  bool          `mapstructure:"download_documents"`
	DocumentExtensions []string      `mapstructure:"document_extensions"`
	MaxBodyBytes       int           `mapstructure:"max_body_bytes"`
}

// CorpusConfig names the on-disk crawl output layout.
type CorpusConfig struct {
	RawDir      string `mapstructure:"raw_dir"`
	DumpFile    string `mapstructure:"dump_file"`
	URLListFile string `mapstructure:"url_list_file"`
}

// ChunkingConfig sets splitter sizes, in characters, for full builds and single-document updates.
type ChunkingConfig struct {
	Size          int `mapstructure:"size"`
	Overlap       int `mapstructure:"overlap"`
	UpdateSize    int `mapstructure:"update_size"`
	UpdateOverlap int `mapstructure:"update_overlap"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "hashing" (offline).
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	BatchSize int    `mapstructure:"batch_size"`
	// Dimension applies to the hashing embedder only.
	Dimension int `mapstructure:"dimension"`
}

// VectorStoreConfig selects where the vector index lives.
type VectorStoreConfig struct {
	// Backend is "local" (index directory) or "postgres" (pgvector table).
	Backend  string         `mapstructure:"backend"`
	Dir      string         `mapstructure:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the pgvector-backed store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// IndexConfig tunes index build semantics.
type IndexConfig struct {
	// Dedup skips chunks whose source+content hash is already indexed.
	Dedup bool `mapstructure:"dedup"`
}

// LLMConfig configures the generation endpoint.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	APIKeyEnv   string        `mapstructure:"api_key_env"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig controls nearest-neighbour lookup and attribution.
type RetrievalConfig struct {
	TopK       int `mapstructure:"top_k"`
	MaxSources int `mapstructure:"max_sources"`
}

// AssistantConfig feeds the prompt template and health payloads.
type AssistantConfig struct {
	Name          string `mapstructure:"name"`
	FallbackEmail string `mapstructure:"fallback_email"`
	FallbackPhone string `mapstructure:"fallback_phone"`
}

// QuickAnswersConfig holds the canned replies served by GET /quick-answer/{key}.
type QuickAnswersConfig struct {
	// Contact is returned for the "contact" key.
	Contact string `mapstructure:"contact"`
	// Location is returned for the "location" key.
	Location string `mapstructure:"location"`
}

// Lookup resolves a quick-answer key; empty answers count as unknown.
func (q QuickAnswersConfig) Lookup(key string) (string, bool) {
	var answer string
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "contact":
		answer = q.Contact
	case "location":
		answer = q.Location
	}
	return answer, answer != ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAMPUSRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.chat_rps", 0)
	v.SetDefault("server.chat_burst", 5)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("crawler.start_url", "https://www.nirmauni.ac.in/")
	v.SetDefault("crawler.allowed_domains", []string{"nirmauni.ac.in", "*.nirmauni.ac.in"})
	v.SetDefault("crawler.priority_paths", []string{
		"/admissions", "/academics", "/placements", "/campus-life", "/about-us", "/contact-us",
	})
	v.SetDefault("crawler.use_sitemap", true)
	v.SetDefault("crawler.max_pages", 5000)
	v.SetDefault("crawler.max_depth", 5)
	v.SetDefault("crawler.delay", "1s")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; CampusRAGCrawler/1.0)")
	v.SetDefault("crawler.request_timeout", "20s")
	v.SetDefault("crawler.max_retries", 5)
	v.SetDefault("crawler.backoff_initial", "1s")
	v.SetDefault("crawler.backoff_max", "30s")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.insecure_skip_verify", false)
	v.SetDefault("crawler.download_documents", true)
	v.SetDefault("crawler.document_extensions", []string{".pdf", ".docx", ".pptx", ".xls", ".xlsx"})
	v.SetDefault("crawler.max_body_bytes", 20<<20)

	v.SetDefault("corpus.raw_dir", "data/raw")
	v.SetDefault("corpus.dump_file", "all_texts.txt")
	v.SetDefault("corpus.url_list_file", "urls.txt")

	v.SetDefault("chunking.size", 800)
	v.SetDefault("chunking.overlap", 150)
	v.SetDefault("chunking.update_size", 1000)
	v.SetDefault("chunking.update_overlap", 150)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.dimension", 384)

	v.SetDefault("vectorstore.backend", "local")
	v.SetDefault("vectorstore.dir", "data/vectorstore")
	v.SetDefault("vectorstore.postgres.dsn", "")
	v.SetDefault("vectorstore.postgres.table", "chunks")
	v.SetDefault("vectorstore.postgres.max_conns", 4)

	v.SetDefault("index.dedup", false)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("retrieval.top_k", 8)
	v.SetDefault("retrieval.max_sources", 3)

	v.SetDefault("assistant.name", "Nirma University")
	v.SetDefault("assistant.fallback_email", "admissions@nirmauni.ac.in")
	v.SetDefault("assistant.fallback_phone", "+91-2717-241911")

	v.SetDefault("quick_answers.contact", "You can contact Nirma University at:\n"+
		"📧 Email: info@nirmauni.ac.in\n"+
		"📞 Phone: +91-2717-241911\n"+
		"📍 Address: Sarkhej-Gandhinagar Highway, Ahmedabad - 382481, Gujarat, India")
	v.SetDefault("quick_answers.location",
		"Nirma University is located at Sarkhej-Gandhinagar Highway, Ahmedabad - 382481, Gujarat, India.")
}

// Validate ensures required fields are present and sane.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ChatRPS < 0 {
		return errors.New("server.chat_rps must be >= 0")
	}
	if err := c.Crawler.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Corpus.RawDir) == "" {
		return errors.New("corpus.raw_dir is required")
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return errors.New("chunking.overlap must be >= 0 and smaller than chunking.size")
	}
	if c.Chunking.UpdateSize <= 0 || c.Chunking.UpdateOverlap < 0 ||
		c.Chunking.UpdateOverlap >= c.Chunking.UpdateSize {
		return errors.New("chunking.update_overlap must be >= 0 and smaller than chunking.update_size")
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.Model == "" {
			return errors.New("embedding.model is required for the openai provider")
		}
	case "hashing":
		if c.Embedding.Dimension <= 0 {
			return errors.New("embedding.dimension must be positive for the hashing provider")
		}
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return errors.New("embedding.batch_size must be positive")
	}
	switch c.VectorStore.Backend {
	case "local":
		if strings.TrimSpace(c.VectorStore.Dir) == "" {
			return errors.New("vectorstore.dir is required for the local backend")
		}
	case "postgres":
		if c.VectorStore.Postgres.DSN == "" {
			return errors.New("vectorstore.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("vectorstore.backend %q is not supported", c.VectorStore.Backend)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be positive")
	}
	if c.Retrieval.MaxSources < 0 {
		return errors.New("retrieval.max_sources must be >= 0")
	}
	return nil
}

func (c CrawlerConfig) validate() error {
	parsed, err := url.Parse(c.StartURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("crawler.start_url %q must be an absolute http(s) URL", c.StartURL)
	}
	if len(c.AllowedDomains) == 0 {
		return errors.New("crawler.allowed_domains must list at least one domain")
	}
	if c.MaxPages <= 0 {
		return errors.New("crawler.max_pages must be positive")
	}
	if c.MaxDepth < 0 {
		return errors.New("crawler.max_depth must be >= 0")
	}
	if c.Delay < 0 {
		return errors.New("crawler.delay must be >= 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("crawler.max_retries must be >= 0")
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return errors.New("crawler.user_agent is required")
	}
	return nil
}
