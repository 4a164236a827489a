package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/mediastore"
	memorycache "github.com/tendant/simple-media/pkg/mediastore/cache/memory"
	rediscache "github.com/tendant/simple-media/pkg/mediastore/cache/redis"
	"github.com/tendant/simple-media/pkg/mediastore/objectkey"
	boltrepo "github.com/tendant/simple-media/pkg/mediastore/repo/bolt"
	memoryrepo "github.com/tendant/simple-media/pkg/mediastore/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/mediastore/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/mediastore/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/mediastore/storage/memory"
	s3storage "github.com/tendant/simple-media/pkg/mediastore/storage/s3"
	"github.com/tendant/simple-media/pkg/mediastore/urlstrategy"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		StorageBackends: map[mediastore.MediaKind]StorageBackendConfig{
			mediastore.MediaKindImage: {Type: "memory", Config: map[string]interface{}{}},
			mediastore.MediaKindVideo: {Type: "memory", Config: map[string]interface{}{}},
		},
		KeyGenerator:       "flat",
		URLStrategy:        string(urlstrategy.StrategyTypeContentBased),
		APIBaseURL:         mediastore.DefaultAPIBaseURL,
		CacheType:          "none",
		CacheTTL:           rediscache.DefaultTTL,
		EnableEventLogging: true,
		MaxUploadBytes:     64 << 20,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// ServerConfig represents server configuration for the media store service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "bolt"
	BoltPath     string
	AutoMigrate  bool

	// Blob partitions, one per media kind
	StorageBackends map[mediastore.MediaKind]StorageBackendConfig

	// Key and URL derivation
	KeyGenerator string // "flat", "sharded"
	URLStrategy  string // "content-based", "cdn"
	APIBaseURL   string
	CDNBaseURL   string

	// Media list cache
	CacheType     string // "none", "memory", "redis"
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	CacheTTL      time.Duration

	// Service behaviour
	EvictOnUnlink      bool
	EnableEventLogging bool
	MaxUploadBytes     int64

	// HTTP auth
	APIKeySHA256 string
	JWTSecret    string

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
}

// StorageBackendConfig represents configuration for one blob partition
type StorageBackendConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "bolt":
		if c.BoltPath == "" {
			return errors.New("bolt path is required when using bolt")
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'bolt'")
	}

	for _, kind := range mediastore.MediaKinds {
		backend, ok := c.StorageBackends[kind]
		if !ok {
			return fmt.Errorf("storage backend for %s partition is not configured", kind)
		}
		switch backend.Type {
		case "memory", "fs", "s3":
		default:
			return fmt.Errorf("unsupported storage backend type for %s partition: %s", kind, backend.Type)
		}
	}

	if _, err := objectkey.New(c.KeyGenerator); err != nil {
		return err
	}

	switch urlstrategy.StrategyType(c.URLStrategy) {
	case "", urlstrategy.StrategyTypeContentBased:
		if c.APIBaseURL == "" {
			return errors.New("api base url is required for content-based urls")
		}
	case urlstrategy.StrategyTypeCDN:
		if c.CDNBaseURL == "" {
			return errors.New("cdn base url is required for cdn urls")
		}
	default:
		return fmt.Errorf("unsupported url strategy: %s", c.URLStrategy)
	}

	switch c.CacheType {
	case "none", "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis address is required when using the redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.CacheType)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Logger builds the structured logger described by LogLevel and LogFormat
func (c *ServerConfig) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// BuildService creates a Service instance from the server configuration.
// The returned cleanup function releases pools and files opened here.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (mediastore.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	options := []mediastore.Option{mediastore.WithLogger(logger)}

	repo, closeRepo, err := c.buildRepository(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	closers = append(closers, closeRepo)
	options = append(options, mediastore.WithRepository(repo))

	for _, kind := range mediastore.MediaKinds {
		store, err := c.buildStorageBackend(ctx, c.StorageBackends[kind])
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to build storage backend for %s partition: %w", kind, err)
		}
		options = append(options, mediastore.WithBlobStore(kind, store))
	}

	generator, err := objectkey.New(c.KeyGenerator)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	options = append(options, mediastore.WithKeyGenerator(generator))

	strategy, err := urlstrategy.New(urlstrategy.Config{
		Type:       urlstrategy.StrategyType(c.URLStrategy),
		APIBaseURL: c.APIBaseURL,
		CDNBaseURL: c.CDNBaseURL,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	options = append(options, mediastore.WithURLStrategy(strategy))

	switch c.CacheType {
	case "memory":
		options = append(options, mediastore.WithListCache(memorycache.New()))
	case "redis":
		cache := rediscache.New(rediscache.Config{
			Addr:     c.RedisAddr,
			DB:       c.RedisDB,
			Password: c.RedisPassword,
			TTL:      c.CacheTTL,
		}, logger)
		closers = append(closers, func() { cache.Close() })
		options = append(options, mediastore.WithListCache(cache))
	}

	if c.EnableEventLogging {
		options = append(options, mediastore.WithEventSink(mediastore.NewLoggingEventSink(logger)))
	}
	options = append(options, mediastore.WithEvictOnUnlink(c.EvictOnUnlink))

	svc, err := mediastore.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, logger *slog.Logger) (mediastore.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memoryrepo.New(), func() {}, nil
	case "bolt":
		repo, err := boltrepo.Open(boltrepo.Config{Path: c.BoltPath})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.Migrate(c.DatabaseURL, logger); err != nil {
				return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig) (mediastore.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/media"),
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			KeyPrefix:              getString(config.Config, "key_prefix", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
