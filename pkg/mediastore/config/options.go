package config

import (
	"errors"
	"time"

	"github.com/tendant/simple-media/pkg/mediastore"
	"github.com/tendant/simple-media/pkg/mediastore/urlstrategy"
)

// WithPort sets the HTTP port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the deployment environment name
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithMemoryDatabase selects the in-memory repository
func WithMemoryDatabase() Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}
}

// WithPostgres selects the Postgres repository
func WithPostgres(databaseURL string, autoMigrate bool) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" {
			return errors.New("postgres database url cannot be empty")
		}
		c.DatabaseType = "postgres"
		c.DatabaseURL = databaseURL
		c.AutoMigrate = autoMigrate
		return nil
	}
}

// WithBolt selects the embedded bbolt repository stored at path
func WithBolt(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return errors.New("bolt path cannot be empty")
		}
		c.DatabaseType = "bolt"
		c.BoltPath = path
		return nil
	}
}

// WithStorage configures the blob partition for kind
func WithStorage(kind mediastore.MediaKind, backend StorageBackendConfig) Option {
	return func(c *ServerConfig) error {
		if !kind.Valid() {
			return mediastore.ErrUnsupportedMediaKind
		}
		c.StorageBackends = withBackend(c.StorageBackends, kind, backend)
		return nil
	}
}

// WithStorageURL configures the blob partition for kind from a storage URL
// such as "file:///var/lib/media/images" or "s3://bucket?region=us-east-1".
func WithStorageURL(kind mediastore.MediaKind, raw string) Option {
	return func(c *ServerConfig) error {
		backend, err := parseStorageURL(raw)
		if err != nil {
			return err
		}
		return WithStorage(kind, backend)(c)
	}
}

// WithMemoryStorage keeps both partitions in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		for _, kind := range mediastore.MediaKinds {
			c.StorageBackends = withBackend(c.StorageBackends, kind, StorageBackendConfig{Type: "memory"})
		}
		return nil
	}
}

// WithFilesystemStorage stores each partition under its own subdirectory
// of baseDir.
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return errors.New("filesystem base dir cannot be empty")
		}
		for _, kind := range mediastore.MediaKinds {
			c.StorageBackends = withBackend(c.StorageBackends, kind, StorageBackendConfig{
				Type:   "fs",
				Config: map[string]interface{}{"base_dir": baseDir + "/" + string(kind)},
			})
		}
		return nil
	}
}

// WithS3Storage configures one partition on an S3 bucket
func WithS3Storage(kind mediastore.MediaKind, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return errors.New("s3 bucket cannot be empty")
		}
		return WithStorage(kind, StorageBackendConfig{
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		})(c)
	}
}

// WithObjectKeyGenerator selects "flat" or "sharded" storage keys
func WithObjectKeyGenerator(name string) Option {
	return func(c *ServerConfig) error {
		c.KeyGenerator = name
		return nil
	}
}

// WithContentBasedURLs serves media through the API under apiBaseURL
func WithContentBasedURLs(apiBaseURL string) Option {
	return func(c *ServerConfig) error {
		c.URLStrategy = string(urlstrategy.StrategyTypeContentBased)
		if apiBaseURL != "" {
			c.APIBaseURL = apiBaseURL
		}
		return nil
	}
}

// WithCDNURLs serves media from a CDN in front of the blob partitions
func WithCDNURLs(cdnBaseURL string) Option {
	return func(c *ServerConfig) error {
		c.URLStrategy = string(urlstrategy.StrategyTypeCDN)
		c.CDNBaseURL = cdnBaseURL
		return nil
	}
}

// WithMemoryCache enables the in-process media list cache
func WithMemoryCache() Option {
	return func(c *ServerConfig) error {
		c.CacheType = "memory"
		return nil
	}
}

// WithRedisCache enables the shared redis media list cache
func WithRedisCache(addr string, db int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.CacheType = "redis"
		c.RedisAddr = addr
		c.RedisDB = db
		if ttl > 0 {
			c.CacheTTL = ttl
		}
		return nil
	}
}

// WithEvictOnUnlink removes assets as soon as their last link goes away
func WithEvictOnUnlink(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EvictOnUnlink = enabled
		return nil
	}
}

// WithEventLogging toggles the slog event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMaxUploadBytes caps the size of one upload request body
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadBytes = n
		return nil
	}
}

// WithAPIKeySHA256 protects the HTTP API with an API key
func WithAPIKeySHA256(hash string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = hash
		return nil
	}
}

// WithJWTSecret protects the HTTP API with HS256 bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithLogging sets log level and format
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		if level != "" {
			c.LogLevel = level
		}
		if format != "" {
			c.LogFormat = format
		}
		return nil
	}
}
