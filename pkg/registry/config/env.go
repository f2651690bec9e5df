package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv overrides settings from environment variables. Only variables that
// are set change the config, so it can be layered over WithConfigFile.
//
// Server:
//
//	PORT, ENVIRONMENT, REGISTRY_URL
//
// Metadata repository:
//
//	DATABASE_TYPE   memory (default), postgres or sqlite
//	DATABASE_URL    postgres connection string
//	DB_SCHEMA       postgres search_path (default: registry)
//	SQLITE_PATH     sqlite database file
//	AUTO_MIGRATE    apply migrations at startup (default: true)
//
// Blob store:
//
//	STORAGE_TYPE    memory (default), fs or s3
//	STORAGE_FS_DIR  base directory for fs
//	S3_BUCKET, S3_REGION, S3_PREFIX, S3_ENDPOINT, S3_ACCESS_KEY_ID,
//	S3_SECRET_ACCESS_KEY, S3_USE_PATH_STYLE, S3_ENABLE_SSE, S3_SSE_ALGORITHM,
//	S3_SSE_KMS_KEY_ID, S3_CREATE_BUCKET_IF_NOT_EXIST
//
// Unpublish:
//
//	UNPUBLISH_REMOVE_TARBALL  delete tarballs on unpublish (default: true)
//	CLEANUP_CONCURRENCY       parallel tarball deletions (default: 4)
//	BLOB_CALL_TIMEOUT         per blob call deadline (default: 30s)
//	BREAKER_THRESHOLD         failures before the blob breaker opens (default: 5)
//
// Authentication:
//
//	ADMINS      comma separated admin user names
//	USERS       comma separated name:bcrypt-hash pairs
//	JWT_SECRET  enables Bearer tokens
//	TOKEN_TTL   token lifetime (default: 24h)
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile decodes a TOML file over the current settings.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
		}
		return nil
	}
}
