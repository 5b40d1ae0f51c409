package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Log      LogConfig
	Tracing  TracingConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Schema   SchemaConfig
	Reader   ReaderConfig
	Writer   WriterConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// JWTSigningKey enables bearer auth on writer routes when set.
	JWTSigningKey string
	JWTIssuer     string
}

type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig selects the span exporter. "none" leaves the global no-op
// provider in place.
type TracingConfig struct {
	Exporter    string
	SampleRatio float64
}

type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders a libpq-style connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// RedisConfig is optional; an empty URL disables the schema cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is optional; no brokers disables the writer task queue.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	ImportTopic string
	SaveTopic   string
	Partitions  int32
	Replication int16
}

type SchemaConfig struct {
	// URI is the base URL of the schema registry; File takes precedence when set.
	URI      string
	File     string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ReaderConfig tunes the query resolution engine.
type ReaderConfig struct {
	QueryTimeout           time.Duration
	MaxPageSize            int
	EntitySchema           string
	HistorySuffix          string
	HistoryOrderColumn     string
	ExecutionFailurePolicy string
	UnboundParameterPolicy string
}

type WriterConfig struct {
	Enabled bool
}

// RegistryCacheTTL bounds how long a schema descriptor may be served from cache.
var RegistryCacheTTL = 5 * time.Minute

var envBindings = map[string]string{
	"server.addr":                     "ADDR",
	"server.shutdown_timeout":         "SHUTDOWN_TIMEOUT",
	"server.jwt_signing_key":          "JWT_SIGNING_KEY",
	"server.jwt_issuer":               "JWT_ISSUER",
	"log.level":                       "LOG_LEVEL",
	"log.format":                      "LOG_FORMAT",
	"tracing.exporter":                "TRACING_EXPORTER",
	"tracing.sample_ratio":            "TRACING_SAMPLE_RATIO",
	"postgres.host":                   "POSTGRES_HOST",
	"postgres.port":                   "POSTGRES_PORT",
	"postgres.db":                     "POSTGRES_DB",
	"postgres.user":                   "POSTGRES_USER",
	"postgres.password":               "POSTGRES_PASSWORD",
	"postgres.sslmode":                "POSTGRES_SSLMODE",
	"postgres.max_open_conns":         "POSTGRES_MAX_OPEN_CONNS",
	"postgres.max_idle_conns":         "POSTGRES_MAX_IDLE_CONNS",
	"postgres.conn_max_lifetime":      "POSTGRES_CONN_MAX_LIFETIME",
	"redis.url":                       "REDIS_URL",
	"redis.pool_size":                 "REDIS_POOL_SIZE",
	"kafka.brokers":                   "KAFKA_BROKERS",
	"kafka.client_id":                 "KAFKA_CLIENT_ID",
	"kafka.import_topic":              "WRITER_IMPORT_TOPIC",
	"kafka.save_topic":                "WRITER_SAVE_TOPIC",
	"schema.uri":                      "SCHEMA_URI",
	"schema.file":                     "SCHEMA_FILE",
	"schema.timeout":                  "SCHEMA_TIMEOUT",
	"schema.cache_ttl":                "SCHEMA_CACHE_TTL",
	"reader.query_timeout":            "READER_QUERY_TIMEOUT",
	"reader.max_page_size":            "READER_MAX_PAGE_SIZE",
	"reader.entity_schema":            "READER_ENTITY_SCHEMA",
	"reader.history_suffix":           "READER_HISTORY_SUFFIX",
	"reader.history_order_column":     "READER_HISTORY_ORDER_COLUMN",
	"reader.execution_failure_policy": "READER_EXECUTION_FAILURE_POLICY",
	"reader.unbound_parameter_policy": "READER_UNBOUND_PARAMETER_POLICY",
	"writer.enabled":                  "WRITER_ENABLED",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.jwt_issuer", "domain-reader")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("kafka.client_id", "domain-reader")
	v.SetDefault("kafka.import_topic", "domain.import")
	v.SetDefault("kafka.save_topic", "domain.save")
	v.SetDefault("schema.uri", "http://domain_schema/schema/")
	v.SetDefault("schema.timeout", 5*time.Second)
	v.SetDefault("schema.cache_ttl", RegistryCacheTTL)
	v.SetDefault("reader.query_timeout", 10*time.Second)
	v.SetDefault("reader.max_page_size", 1000)
	v.SetDefault("reader.entity_schema", "entities")
	v.SetDefault("reader.history_suffix", "_history")
	v.SetDefault("reader.history_order_column", "snapshot_id")
	v.SetDefault("reader.execution_failure_policy", "error")
	v.SetDefault("reader.unbound_parameter_policy", "reject")
	v.SetDefault("writer.enabled", true)
}

// Load builds a Config from defaults, an optional config file and the
// environment. Environment variables win over the file.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			JWTSigningKey:   v.GetString("server.jwt_signing_key"),
			JWTIssuer:       v.GetString("server.jwt_issuer"),
		},
		Log: LogConfig{
			Level:  strings.ToUpper(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Tracing: TracingConfig{
			Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
		Postgres: PostgresConfig{
			Host:            v.GetString("postgres.host"),
			Port:            v.GetInt("postgres.port"),
			Database:        v.GetString("postgres.db"),
			User:            v.GetString("postgres.user"),
			Password:        v.GetString("postgres.password"),
			SSLMode:         v.GetString("postgres.sslmode"),
			MaxOpenConns:    v.GetInt("postgres.max_open_conns"),
			MaxIdleConns:    v.GetInt("postgres.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("postgres.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("kafka.brokers")),
			ClientID:    v.GetString("kafka.client_id"),
			ImportTopic: v.GetString("kafka.import_topic"),
			SaveTopic:   v.GetString("kafka.save_topic"),
			Partitions:  3,
			Replication: 1,
		},
		Schema: SchemaConfig{
			URI:      v.GetString("schema.uri"),
			File:     v.GetString("schema.file"),
			Timeout:  v.GetDuration("schema.timeout"),
			CacheTTL: v.GetDuration("schema.cache_ttl"),
		},
		Reader: ReaderConfig{
			QueryTimeout:           v.GetDuration("reader.query_timeout"),
			MaxPageSize:            v.GetInt("reader.max_page_size"),
			EntitySchema:           v.GetString("reader.entity_schema"),
			HistorySuffix:          v.GetString("reader.history_suffix"),
			HistoryOrderColumn:     v.GetString("reader.history_order_column"),
			ExecutionFailurePolicy: strings.ToLower(v.GetString("reader.execution_failure_policy")),
			UnboundParameterPolicy: strings.ToLower(v.GetString("reader.unbound_parameter_policy")),
		},
		Writer: WriterConfig{
			Enabled: v.GetBool("writer.enabled"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Reader.ExecutionFailurePolicy {
	case "error", "empty":
	default:
		return fmt.Errorf("invalid READER_EXECUTION_FAILURE_POLICY %q: want error or empty", c.Reader.ExecutionFailurePolicy)
	}
	switch c.Reader.UnboundParameterPolicy {
	case "reject", "drop":
	default:
		return fmt.Errorf("invalid READER_UNBOUND_PARAMETER_POLICY %q: want reject or drop", c.Reader.UnboundParameterPolicy)
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("invalid TRACING_EXPORTER %q: want none or stdout", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.Reader.MaxPageSize <= 0 {
		return fmt.Errorf("READER_MAX_PAGE_SIZE must be positive")
	}
	if c.Reader.QueryTimeout <= 0 {
		return fmt.Errorf("READER_QUERY_TIMEOUT must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
