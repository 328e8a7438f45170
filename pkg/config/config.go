// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Analysis, Scoring,
// Search, Corpus, etc.).
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Postgres PostgresConfig    `yaml:"postgres"`
	Kafka    KafkaConfig       `yaml:"kafka"`
	Redis    RedisConfig       `yaml:"redis"`
	Indexer  IndexerConfig     `yaml:"indexer"`
	Analysis AnalysisConfig    `yaml:"analysis"`
	Scoring  similarity.Config `yaml:"scoring"`
	Search   SearchConfig      `yaml:"search"`
	Corpus   CorpusConfig      `yaml:"corpus"`
	Logging  LoggingConfig     `yaml:"logging"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the sustained requests per second allowed per server;
	// zero disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchResults string `yaml:"searchResults"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls where the index lives and how it is built.
type IndexerConfig struct {
	DataDir        string `yaml:"dataDir"`
	IndexFile      string `yaml:"indexFile"`
	SegmentMaxSize int64  `yaml:"segmentMaxSize"`
	// Compact merges all segments into one after finalize.
	Compact bool `yaml:"compact"`
	// StoredFields keeps raw text only for these fields. Empty stores
	// every field.
	StoredFields []string `yaml:"storedFields"`
}

// IndexPath is IndexFile resolved against DataDir.
func (c IndexerConfig) IndexPath() string {
	if c.DataDir == "" || strings.HasPrefix(c.IndexFile, "/") {
		return c.IndexFile
	}
	return strings.TrimSuffix(c.DataDir, "/") + "/" + c.IndexFile
}

// AnalysisConfig names the analyzer for every field. Values are preset
// names (english, standard, simple, whitespace, keyword); Custom entries
// override them with explicit stage toggles.
type AnalysisConfig struct {
	Default string                      `yaml:"default"`
	Fields  map[string]string           `yaml:"fields"`
	Custom  map[string]tokenizer.Config `yaml:"custom"`
}

// Schema compiles the analysis section.
func (a AnalysisConfig) Schema() (*tokenizer.Schema, error) {
	def, err := tokenizer.Preset(a.Default)
	if err != nil {
		return nil, fmt.Errorf("analysis.default: %w", err)
	}
	fields := make(map[string]tokenizer.Config, len(a.Fields)+len(a.Custom))
	for field, name := range a.Fields {
		cfg, err := tokenizer.Preset(name)
		if err != nil {
			return nil, fmt.Errorf("analysis.fields.%s: %w", field, err)
		}
		fields[field] = cfg
	}
	for field, cfg := range a.Custom {
		fields[field] = cfg
	}
	return tokenizer.NewSchema(def, fields)
}

// SearchConfig controls query parsing and execution limits.
type SearchConfig struct {
	// MaxResults is the ranking depth of batch runs and the cap on the
	// HTTP limit parameter.
	MaxResults           int           `yaml:"maxResults"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	MaxConcurrentQueries int           `yaml:"maxConcurrentQueries"`
	Fields               []string      `yaml:"fields"`
	DefaultOperator      string        `yaml:"defaultOperator"`
	IDField              string        `yaml:"idField"`
	Timeout              time.Duration `yaml:"timeout"`
}

// CorpusConfig describes where documents and queries come from and where
// batch results go.
type CorpusConfig struct {
	// Source is "cranfield" (a .I/.T/.A/.B/.W file) or "postgres".
	Source        string `yaml:"source"`
	DocumentsPath string `yaml:"documentsPath"`
	QueriesPath   string `yaml:"queriesPath"`
	ResultsPath   string `yaml:"resultsPath"`
	RunTag        string `yaml:"runTag"`
	Table         string `yaml:"table"`
	// SequentialQueryIDs numbers queries 1..n instead of using their .I
	// values, matching the Cranfield relevance judgements.
	SequentialQueryIDs bool `yaml:"sequentialQueryIds"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig mirrors the Cranfield evaluation setup: english analysis,
// BM25, and the four searchable fields.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateBurst:       50,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fieldsearch",
			User:            "fieldsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				SearchResults: "search-results",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "data",
			IndexFile:      "cranfield.spdx",
			SegmentMaxSize: 64 << 20,
			Compact:        true,
			StoredFields:   []string{"doc_id"},
		},
		Analysis: AnalysisConfig{
			Default: "english",
			Fields: map[string]string{
				"doc_id": "keyword",
			},
		},
		Scoring: similarity.DefaultConfig(),
		Search: SearchConfig{
			MaxResults:           1400,
			DefaultLimit:         10,
			MaxConcurrentQueries: 8,
			Fields:               []string{"title", "author", "bibliography", "contentSubstance"},
			DefaultOperator:      "OR",
			IDField:              "doc_id",
			Timeout:              5 * time.Second,
		},
		Corpus: CorpusConfig{
			Source:             "cranfield",
			DocumentsPath:      "cran/cran.all.1400",
			QueriesPath:        "cran/cran.qry",
			ResultsPath:        "results.txt",
			RunTag:             "fieldsearch",
			Table:              "documents",
			SequentialQueryIDs: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		add("server.rateLimit and server.rateBurst must not be negative")
	}
	if c.Indexer.IndexFile == "" {
		add("indexer.indexFile is required")
	}
	if c.Indexer.SegmentMaxSize <= 0 {
		add("indexer.segmentMaxSize must be positive")
	}
	if _, err := c.Analysis.Schema(); err != nil {
		add("analysis: %v", err)
	}
	if _, err := similarity.New(c.Scoring); err != nil {
		add("scoring: %v", err)
	}
	if c.Search.MaxResults <= 0 {
		add("search.maxResults must be positive")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		add("search.defaultLimit must be in [1, maxResults]")
	}
	if c.Search.MaxConcurrentQueries <= 0 {
		add("search.maxConcurrentQueries must be positive")
	}
	if len(c.Search.Fields) == 0 {
		add("search.fields must list at least one field")
	}
	if len(c.Indexer.StoredFields) > 0 && c.Search.IDField != "" && !slices.Contains(c.Indexer.StoredFields, c.Search.IDField) {
		add("indexer.storedFields must include search.idField %q", c.Search.IDField)
	}
	switch strings.ToUpper(c.Search.DefaultOperator) {
	case "AND", "OR":
	default:
		add("search.defaultOperator must be AND or OR, got %q", c.Search.DefaultOperator)
	}
	switch c.Corpus.Source {
	case "cranfield", "postgres":
	default:
		add("corpus.source must be cranfield or postgres, got %q", c.Corpus.Source)
	}
	if c.Corpus.Source == "postgres" && c.Corpus.Table == "" {
		add("corpus.table is required for the postgres source")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topics.SearchResults == "") {
		add("kafka.brokers and kafka.topics.searchResults are required when kafka is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: invalid configuration: %s", apperrors.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("FS_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("FS_SCORING_MODEL"); v != "" {
		cfg.Scoring.Model = v
	}
	if v := os.Getenv("FS_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("FS_CORPUS_DOCUMENTS_PATH"); v != "" {
		cfg.Corpus.DocumentsPath = v
	}
	if v := os.Getenv("FS_CORPUS_QUERIES_PATH"); v != "" {
		cfg.Corpus.QueriesPath = v
	}
	if v := os.Getenv("FS_CORPUS_RESULTS_PATH"); v != "" {
		cfg.Corpus.ResultsPath = v
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
