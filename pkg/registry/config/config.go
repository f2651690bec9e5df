package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/auth"
	"github.com/tendant/simple-registry/pkg/registry/repo/memory"
	repopg "github.com/tendant/simple-registry/pkg/registry/repo/postgres"
	reposqlite "github.com/tendant/simple-registry/pkg/registry/repo/sqlite"
	fsstorage "github.com/tendant/simple-registry/pkg/registry/storage/fs"
	memorystorage "github.com/tendant/simple-registry/pkg/registry/storage/memory"
	"github.com/tendant/simple-registry/pkg/registry/storage/resilient"
	s3storage "github.com/tendant/simple-registry/pkg/registry/storage/s3"
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
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.removeTarball = new(atomic.Bool)
	cfg.removeTarball.Store(cfg.RemoveTarballOnUnpublish)
	return cfg, nil
}

func defaults() *ServerConfig {
	return &ServerConfig{
		Port:                     "8080",
		Environment:              "development",
		DatabaseType:             "memory",
		DBSchema:                 "registry",
		SQLitePath:               "./data/registry.db",
		AutoMigrate:              true,
		StorageType:              "memory",
		StorageFSDir:             "./data/tarballs",
		S3:                       S3Config{Region: "us-east-1", SSEAlgorithm: "AES256"},
		RemoveTarballOnUnpublish: true,
		CleanupConcurrency:       4,
		BlobCallTimeout:          30 * time.Second,
		BreakerThreshold:         5,
		TokenTTL:                 24 * time.Hour,
		MaxPublishSize:           50 << 20,
		EnableEventLogging:       true,
	}
}

// ServerConfig represents server configuration for the registry
type ServerConfig struct {
	Port        string `toml:"port" env:"PORT"`
	Environment string `toml:"environment" env:"ENVIRONMENT"` // development, production, testing
	// RegistryURL is the public base URL written into dist.tarball
	RegistryURL string `toml:"registry_url" env:"REGISTRY_URL"`

	// Metadata repository
	DatabaseType string `toml:"database_type" env:"DATABASE_TYPE"` // "memory", "postgres", "sqlite"
	DatabaseURL  string `toml:"database_url" env:"DATABASE_URL"`
	DBSchema     string `toml:"db_schema" env:"DB_SCHEMA"`
	SQLitePath   string `toml:"sqlite_path" env:"SQLITE_PATH"`
	AutoMigrate  bool   `toml:"auto_migrate" env:"AUTO_MIGRATE"`

	// Blob store
	StorageType  string   `toml:"storage_type" env:"STORAGE_TYPE"` // "memory", "fs", "s3"
	StorageFSDir string   `toml:"storage_fs_dir" env:"STORAGE_FS_DIR"`
	S3           S3Config `toml:"s3" env-prefix:"S3_"`

	// Unpublish
	RemoveTarballOnUnpublish bool          `toml:"unpublish_remove_tarball" env:"UNPUBLISH_REMOVE_TARBALL"`
	CleanupConcurrency       int           `toml:"cleanup_concurrency" env:"CLEANUP_CONCURRENCY"`
	BlobCallTimeout          time.Duration `toml:"blob_call_timeout" env:"BLOB_CALL_TIMEOUT"`
	BreakerThreshold         int64         `toml:"breaker_threshold" env:"BREAKER_THRESHOLD"`

	// Authentication
	Admins    []string          `toml:"admins" env:"ADMINS"`
	Users     map[string]string `toml:"users" env:"USERS"` // name -> bcrypt hash
	JWTSecret string            `toml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration     `toml:"token_ttl" env:"TOKEN_TTL"`

	MaxPublishSize     int64 `toml:"max_publish_size" env:"MAX_PUBLISH_SIZE"`
	EnableEventLogging bool  `toml:"enable_event_logging" env:"ENABLE_EVENT_LOGGING"`

	removeTarball *atomic.Bool
}

// S3Config configures the S3 blob store
type S3Config struct {
	Region                 string `toml:"region" env:"REGION"`
	Bucket                 string `toml:"bucket" env:"BUCKET"`
	Prefix                 string `toml:"prefix" env:"PREFIX"`
	AccessKeyID            string `toml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey        string `toml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	Endpoint               string `toml:"endpoint" env:"ENDPOINT"`
	UsePathStyle           bool   `toml:"use_path_style" env:"USE_PATH_STYLE"`
	EnableSSE              bool   `toml:"enable_sse" env:"ENABLE_SSE"`
	SSEAlgorithm           string `toml:"sse_algorithm" env:"SSE_ALGORITHM"`
	SSEKMSKeyID            string `toml:"sse_kms_key_id" env:"SSE_KMS_KEY_ID"`
	CreateBucketIfNotExist bool   `toml:"create_bucket_if_not_exist" env:"CREATE_BUCKET_IF_NOT_EXIST"`
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
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required when using sqlite")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got %q", c.DatabaseType)
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.StorageFSDir == "" {
			return errors.New("storage_fs_dir is required when using fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 storage")
		}
	default:
		return fmt.Errorf("storage_type must be 'memory', 'fs' or 's3', got %q", c.StorageType)
	}

	if c.CleanupConcurrency < 1 {
		return errors.New("cleanup_concurrency must be at least 1")
	}
	if c.BlobCallTimeout <= 0 {
		return errors.New("blob_call_timeout must be positive")
	}
	return nil
}

// SetRemoveTarballOnUnpublish changes the tarball policy of services built
// from this config. The next Unpublish picks it up.
func (c *ServerConfig) SetRemoveTarballOnUnpublish(enabled bool) {
	c.policy().Store(enabled)
}

// RemoveTarballEnabled reports the current tarball policy.
func (c *ServerConfig) RemoveTarballEnabled() bool {
	return c.policy().Load()
}

func (c *ServerConfig) policy() *atomic.Bool {
	if c.removeTarball == nil {
		c.removeTarball = new(atomic.Bool)
		c.removeTarball.Store(c.RemoveTarballOnUnpublish)
	}
	return c.removeTarball
}

// Runtime is what BuildService assembled. Close releases pools and clients.
type Runtime struct {
	Service  registry.Service
	Resolver *auth.Resolver
	closers  []func()
}

// Close releases the resources opened by BuildService
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildBlobStore(rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	options := []registry.Option{
		registry.WithRepository(repo),
		registry.WithBlobStore(resilient.New(store, resilient.Config{
			Name:      c.StorageType,
			Timeout:   c.BlobCallTimeout,
			Threshold: c.BreakerThreshold,
		})),
		registry.WithLogger(logger),
		registry.WithTarballPolicy(c.RemoveTarballEnabled),
		registry.WithCleanupConcurrency(c.CleanupConcurrency),
	}
	if c.EnableEventLogging {
		options = append(options, registry.WithEventSink(registry.NewLogEventSink(logger)))
	}

	svc, err := registry.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	rt.Resolver = c.BuildResolver()
	return rt, nil
}

// BuildResolver creates the credential resolver
func (c *ServerConfig) BuildResolver() *auth.Resolver {
	return auth.New(auth.Config{
		Users:     c.Users,
		Admins:    c.Admins,
		JWTSecret: c.JWTSecret,
		TokenTTL:  c.TokenTTL,
	})
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (registry.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := NewPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		if c.AutoMigrate {
			if err := repopg.Migrate(ctx, pool, c.DBSchema); err != nil {
				return nil, err
			}
		}
		return repopg.NewWithPool(pool), nil
	case "sqlite":
		repo, err := reposqlite.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { repo.Close() })
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPostgresPool opens a pgx pool whose sessions use schema as search_path.
func NewPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildBlobStore creates the tarball store based on the configuration
func (c *ServerConfig) buildBlobStore(rt *Runtime) (registry.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.StorageFSDir})
	case "s3":
		backend, err := s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			Prefix:                 c.S3.Prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, backend.Close)
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}
