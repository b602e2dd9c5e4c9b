package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// RedisConfig holds redis configuration used by the challenge queue and advisory locks
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	Subject        string        `mapstructure:"subject"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// EthereumConfig holds the chain log source configuration
type EthereumConfig struct {
	RPCURL               string        `mapstructure:"rpc_url"`
	EntityManagerAddress string        `mapstructure:"entity_manager_address"`
	StartBlock           uint64        `mapstructure:"start_block"`
	BlockBatchSize       uint64        `mapstructure:"block_batch_size"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	HeadTTL              time.Duration `mapstructure:"head_ttl"`
	MaxRetries           uint64        `mapstructure:"max_retries"`
	RetryInterval        time.Duration `mapstructure:"retry_interval"`
}

// OffsetsConfig holds the id namespace offsets per entity type.
// Created ids must be strictly greater than the offset.
type OffsetsConfig struct {
	User     int64 `mapstructure:"user"`
	Track    int64 `mapstructure:"track"`
	Playlist int64 `mapstructure:"playlist"`
	Comment  int64 `mapstructure:"comment"`
	Event    int64 `mapstructure:"event"`
}

// LimitsConfig holds character limits enforced by the resolvers
type LimitsConfig struct {
	Description int `mapstructure:"description"`
	Bio         int `mapstructure:"bio"`
	Comment     int `mapstructure:"comment"`
}

// EntityManagerConfig holds validation rules of the entity manager
type EntityManagerConfig struct {
	Offsets         OffsetsConfig `mapstructure:"offsets"`
	Limits          LimitsConfig  `mapstructure:"limits"`
	VerifierAddress string        `mapstructure:"verifier_address"`
	Genres          []string      `mapstructure:"genres"`
}

// MetadataConfig holds metadata fetch configuration
type MetadataConfig struct {
	IPFSGateways []string      `mapstructure:"ipfs_gateways"`
	Concurrency  int           `mapstructure:"concurrency"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ChallengesConfig holds challenge bus configuration
type ChallengesConfig struct {
	DefinitionsPath       string        `mapstructure:"definitions_path"`
	QueueBackend          string        `mapstructure:"queue_backend"` // redis or bolt
	BoltPath              string        `mapstructure:"bolt_path"`
	QueueKey              string        `mapstructure:"queue_key"`
	MaxEventsPerTick      int           `mapstructure:"max_events_per_tick"`
	ProcessInterval       time.Duration `mapstructure:"process_interval"`
	BlacklistSyncInterval time.Duration `mapstructure:"blacklist_sync_interval"`
}

// PlaysConfig holds the durable consumer of the plays stream. The connection
// itself comes from NATSConfig.
type PlaysConfig struct {
	StreamName   string        `mapstructure:"stream_name"`
	Subject      string        `mapstructure:"subject"`
	ConsumerName string        `mapstructure:"consumer_name"`
	AckWait      time.Duration `mapstructure:"ack_wait"`
	MaxDeliver   int           `mapstructure:"max_deliver"`
}

// LockConfig holds advisory lock configuration
type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds the health and metrics HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// IndexerConfig holds configuration for the indexer
type IndexerConfig struct {
	BaseConfig    `mapstructure:",squash"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	EntityManager EntityManagerConfig `mapstructure:"entity_manager"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Challenges    ChallengesConfig    `mapstructure:"challenges"`
	Lock          LockConfig          `mapstructure:"lock"`
	Server        ServerConfig        `mapstructure:"server"`
	BlacklistPath string              `mapstructure:"blacklist_path"`
}

// ChallengeWorkerConfig holds configuration for the challenge worker
type ChallengeWorkerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Plays      PlaysConfig      `mapstructure:"plays"`
	Challenges ChallengesConfig `mapstructure:"challenges"`
	Lock       LockConfig       `mapstructure:"lock"`
	Server     ServerConfig     `mapstructure:"server"`
}

// LoadIndexerConfig loads configuration for the indexer
func LoadIndexerConfig(configFile string, envPath string) (*IndexerConfig, error) {
	v := configureViper("indexer", configFile, envPath)

	// Set defaults
	setCommonDefaults(v)
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "ENTITY_INDEXER")
	v.SetDefault("nats.subject", "entity_indexer.block_indexed")
	v.SetDefault("ethereum.block_batch_size", 100)
	v.SetDefault("ethereum.poll_interval", "2s")
	v.SetDefault("ethereum.head_ttl", "1s")
	v.SetDefault("ethereum.max_retries", 5)
	v.SetDefault("ethereum.retry_interval", "1s")
	v.SetDefault("entity_manager.offsets.user", domain.DEFAULT_USER_ID_OFFSET)
	v.SetDefault("entity_manager.offsets.track", domain.DEFAULT_TRACK_ID_OFFSET)
	v.SetDefault("entity_manager.offsets.playlist", domain.DEFAULT_PLAYLIST_ID_OFFSET)
	v.SetDefault("entity_manager.offsets.comment", domain.DEFAULT_COMMENT_ID_OFFSET)
	v.SetDefault("entity_manager.offsets.event", domain.DEFAULT_EVENT_ID_OFFSET)
	v.SetDefault("entity_manager.limits.description", domain.CHARACTER_LIMIT_DESCRIPTION)
	v.SetDefault("entity_manager.limits.bio", domain.CHARACTER_LIMIT_USER_BIO)
	v.SetDefault("entity_manager.limits.comment", domain.CHARACTER_LIMIT_COMMENT)
	v.SetDefault("entity_manager.genres", domain.DefaultGenres)
	v.SetDefault("metadata.ipfs_gateways", []string{"https://ipfs.io", "https://cloudflare-ipfs.com"})
	v.SetDefault("metadata.concurrency", 16)
	v.SetDefault("metadata.timeout", "10s")
	v.SetDefault("server.port", 8081)

	if err := readInConfig(v); err != nil {
		return nil, err
	}

	var cfg IndexerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Ethereum.EntityManagerAddress == "" {
		return nil, errors.New("ethereum.entity_manager_address is required")
	}

	return &cfg, nil
}

// LoadChallengeWorkerConfig loads configuration for the challenge worker
func LoadChallengeWorkerConfig(configFile string, envPath string) (*ChallengeWorkerConfig, error) {
	v := configureViper("challenge-worker", configFile, envPath)

	// Set defaults
	setCommonDefaults(v)
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("plays.stream_name", "PLAYS")
	v.SetDefault("plays.subject", "plays.recorded")
	v.SetDefault("plays.consumer_name", "challenge-worker")
	v.SetDefault("plays.ack_wait", "30s")
	v.SetDefault("plays.max_deliver", 5)
	v.SetDefault("server.port", 8082)

	if err := readInConfig(v); err != nil {
		return nil, err
	}

	var cfg ChallengeWorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("challenges.definitions_path", "config/challenges.json")
	v.SetDefault("challenges.queue_backend", "redis")
	v.SetDefault("challenges.bolt_path", "data/challenges.db")
	v.SetDefault("challenges.queue_key", "challenges-event-queue")
	v.SetDefault("challenges.max_events_per_tick", 1000)
	v.SetDefault("challenges.process_interval", "10s")
	v.SetDefault("challenges.blacklist_sync_interval", "5m")
	v.SetDefault("lock.ttl", "1m")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
}

// readInConfig reads the config file, tolerating a missing file
func readInConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("FF_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"blacklist_path",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.subject",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Plays
		"plays.stream_name",
		"plays.subject",
		"plays.consumer_name",
		"plays.ack_wait",
		"plays.max_deliver",
		// Ethereum
		"ethereum.rpc_url",
		"ethereum.entity_manager_address",
		"ethereum.start_block",
		"ethereum.block_batch_size",
		"ethereum.poll_interval",
		"ethereum.head_ttl",
		"ethereum.max_retries",
		"ethereum.retry_interval",
		// Entity manager
		"entity_manager.offsets.user",
		"entity_manager.offsets.track",
		"entity_manager.offsets.playlist",
		"entity_manager.offsets.comment",
		"entity_manager.offsets.event",
		"entity_manager.limits.description",
		"entity_manager.limits.bio",
		"entity_manager.limits.comment",
		"entity_manager.verifier_address",
		"entity_manager.genres",
		// Metadata
		"metadata.ipfs_gateways",
		"metadata.concurrency",
		"metadata.timeout",
		// Challenges
		"challenges.definitions_path",
		"challenges.queue_backend",
		"challenges.bolt_path",
		"challenges.queue_key",
		"challenges.max_events_per_tick",
		"challenges.process_interval",
		"challenges.blacklist_sync_interval",
		// Lock
		"lock.ttl",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		_ = godotenv.Overload(filepath.Join(envPath, envFile)) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
