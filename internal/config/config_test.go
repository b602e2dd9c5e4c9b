package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

func TestLoadIndexerConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *IndexerConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
blacklist_path: "config/blacklist.json"
database:
  host: localhost
  port: 5432
  user: testuser
  password: testpass
  dbname: testdb
  sslmode: require
redis:
  addr: "redis:6379"
  db: 2
nats:
  url: "nats://localhost:4222"
  stream_name: "TEST_STREAM"
  subject: "test.block_indexed"
ethereum:
  rpc_url: "http://localhost:8545"
  entity_manager_address: "0x1cEAC1f1C5b6a6b3A0E2f1d6F3E7f0bB1Aa8e4C1"
  start_block: 1000
  block_batch_size: 50
entity_manager:
  offsets:
    user: 10
    track: 20
  limits:
    bio: 100
  verifier_address: "0xverifier"
  genres: ["Rock", "Jazz"]
metadata:
  ipfs_gateways: ["https://gateway.example.com"]
  concurrency: 4
  timeout: "3s"
`,
			validate: func(t *testing.T, cfg *IndexerConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "config/blacklist.json", cfg.BlacklistPath)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.Equal(t, "redis:6379", cfg.Redis.Addr)
				assert.Equal(t, 2, cfg.Redis.DB)
				assert.Equal(t, "TEST_STREAM", cfg.NATS.StreamName)
				assert.Equal(t, "test.block_indexed", cfg.NATS.Subject)
				assert.Equal(t, uint64(1000), cfg.Ethereum.StartBlock)
				assert.Equal(t, uint64(50), cfg.Ethereum.BlockBatchSize)
				assert.Equal(t, int64(10), cfg.EntityManager.Offsets.User)
				assert.Equal(t, int64(20), cfg.EntityManager.Offsets.Track)
				assert.Equal(t, int64(domain.DEFAULT_PLAYLIST_ID_OFFSET), cfg.EntityManager.Offsets.Playlist)
				assert.Equal(t, 100, cfg.EntityManager.Limits.Bio)
				assert.Equal(t, domain.CHARACTER_LIMIT_DESCRIPTION, cfg.EntityManager.Limits.Description)
				assert.Equal(t, "0xverifier", cfg.EntityManager.VerifierAddress)
				assert.Equal(t, []string{"Rock", "Jazz"}, cfg.EntityManager.Genres)
				assert.Equal(t, []string{"https://gateway.example.com"}, cfg.Metadata.IPFSGateways)
				assert.Equal(t, 4, cfg.Metadata.Concurrency)
				assert.Equal(t, 3*time.Second, cfg.Metadata.Timeout)
			},
		},
		{
			name: "config with defaults",
			configFile: `
ethereum:
  entity_manager_address: "0x1cEAC1f1C5b6a6b3A0E2f1d6F3E7f0bB1Aa8e4C1"
`,
			validate: func(t *testing.T, cfg *IndexerConfig) {
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
				assert.Equal(t, uint64(100), cfg.Ethereum.BlockBatchSize)
				assert.Equal(t, 2*time.Second, cfg.Ethereum.PollInterval)
				assert.Equal(t, time.Second, cfg.Ethereum.HeadTTL)
				assert.Equal(t, int64(domain.DEFAULT_USER_ID_OFFSET), cfg.EntityManager.Offsets.User)
				assert.Equal(t, int64(domain.DEFAULT_TRACK_ID_OFFSET), cfg.EntityManager.Offsets.Track)
				assert.Equal(t, int64(domain.DEFAULT_COMMENT_ID_OFFSET), cfg.EntityManager.Offsets.Comment)
				assert.Equal(t, domain.CHARACTER_LIMIT_COMMENT, cfg.EntityManager.Limits.Comment)
				assert.Equal(t, domain.DefaultGenres, cfg.EntityManager.Genres)
				assert.Equal(t, "challenges-event-queue", cfg.Challenges.QueueKey)
				assert.Equal(t, "redis", cfg.Challenges.QueueBackend)
				assert.Equal(t, 5*time.Minute, cfg.Challenges.BlacklistSyncInterval)
				assert.Equal(t, 8081, cfg.Server.Port)
			},
		},
		{
			name: "missing entity manager address",
			configFile: `
database:
  host: localhost
`,
			expectError: true,
		},
		{
			name: "invalid yaml",
			configFile: `
				database:
				  host: localhost
				  port: invalid
			`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadIndexerConfig(configFile, t.TempDir())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadChallengeWorkerConfig(t *testing.T) {
	t.Run("missing config file uses defaults", func(t *testing.T) {
		cfg, err := LoadChallengeWorkerConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"), t.TempDir())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, time.Minute, cfg.Lock.TTL)
		assert.Equal(t, 1000, cfg.Challenges.MaxEventsPerTick)
		assert.Equal(t, 10*time.Second, cfg.Challenges.ProcessInterval)
		assert.Equal(t, "config/challenges.json", cfg.Challenges.DefinitionsPath)
		assert.Equal(t, 8082, cfg.Server.Port)
		assert.Empty(t, cfg.NATS.URL)
		assert.Equal(t, "PLAYS", cfg.Plays.StreamName)
		assert.Equal(t, "plays.recorded", cfg.Plays.Subject)
		assert.Equal(t, "challenge-worker", cfg.Plays.ConsumerName)
		assert.Equal(t, 30*time.Second, cfg.Plays.AckWait)
		assert.Equal(t, 5, cfg.Plays.MaxDeliver)
	})

	t.Run("valid config file", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		err := os.WriteFile(configFile, []byte(`
lock:
  ttl: "30s"
challenges:
  queue_backend: bolt
  bolt_path: "/tmp/queue.db"
  max_events_per_tick: 50
nats:
  url: "nats://nats:4222"
plays:
  consumer_name: "worker-2"
  max_deliver: 3
`), 0600)
		require.NoError(t, err)

		cfg, err := LoadChallengeWorkerConfig(configFile, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
		assert.Equal(t, "worker-2", cfg.Plays.ConsumerName)
		assert.Equal(t, 3, cfg.Plays.MaxDeliver)
		assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
		assert.Equal(t, "bolt", cfg.Challenges.QueueBackend)
		assert.Equal(t, "/tmp/queue.db", cfg.Challenges.BoltPath)
		assert.Equal(t, 50, cfg.Challenges.MaxEventsPerTick)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "complete config",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				DBName:   "testdb",
				SSLMode:  "require",
			},
			expected: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require",
		},
		{
			name: "with special characters in password",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "p@ssw0rd!",
				DBName:   "testdb",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=testuser password=p@ssw0rd! dbname=testdb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	// godotenv sets process env vars; register them so they are restored after the test
	for _, key := range []string{
		"FF_INDEXER_DEBUG",
		"FF_INDEXER_DATABASE_HOST",
		"FF_INDEXER_DATABASE_PORT",
		"FF_INDEXER_REDIS_ADDR",
		"FF_INDEXER_LOCK_TTL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	envDir := filepath.Join(tmpDir, "env")
	require.NoError(t, os.MkdirAll(envDir, 0750))
	envContent := `FF_INDEXER_DEBUG=true
FF_INDEXER_DATABASE_HOST=env-host
FF_INDEXER_DATABASE_PORT=3306
FF_INDEXER_REDIS_ADDR=env-redis:6379
`
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env"), []byte(envContent), 0600))
	// service local file overrides the shared one
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env.challenge-worker.local"), []byte("FF_INDEXER_LOCK_TTL=45s\n"), 0600))

	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
database:
  host: file-host
  port: 5432
lock:
  ttl: "10s"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configFile), 0600))

	cfg, err := LoadChallengeWorkerConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Lock.TTL)
}
