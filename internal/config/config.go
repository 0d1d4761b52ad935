// Package config loads sitcomledger settings from an optional config file,
// .env files and SITCOM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sitcomledger/internal/archive"
	"sitcomledger/internal/ledger"
	"sitcomledger/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SITCOM"

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver      ledger.StorageDriver `mapstructure:"driver"`
	SQLitePath  string               `mapstructure:"sqlite_path"`
	PostgresDSN string               `mapstructure:"postgres_dsn"`
}

// RedisConfig enables the Redis notification stream when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// HTTPConfig configures the HTTP host.
type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format logging.Format `mapstructure:"format"`
	Level  string         `mapstructure:"level"`
}

// ObservabilityConfig enables the optional trace file, expvar export and
// audit log.
type ObservabilityConfig struct {
	TraceFile  string `mapstructure:"trace_file"`
	ExpvarName string `mapstructure:"expvar_name"`
	Audit      bool   `mapstructure:"audit"`
}

// LedgerConfig configures identifier derivation and award policies.
type LedgerConfig struct {
	SeedSource string               `mapstructure:"seed_source"`
	Hash       string               `mapstructure:"hash"`
	Awards     []ledger.AwardPolicy `mapstructure:"awards"`
}

// Config is the full process configuration.
type Config struct {
	Storage StorageConfig   `mapstructure:"storage"`
	Archive archive.Options `mapstructure:"archive"`
	Redis   RedisConfig     `mapstructure:"redis"`
	HTTP    HTTPConfig      `mapstructure:"http"`
	Log     LogConfig       `mapstructure:"log"`
	Ledger  LedgerConfig    `mapstructure:"ledger"`

	Observability ObservabilityConfig `mapstructure:"observability"`
}

// envBindings maps config keys to variable names without the prefix.
var envBindings = map[string]string{
	"storage.driver":               "STORAGE_DRIVER",
	"storage.sqlite_path":          "SQLITE_PATH",
	"storage.postgres_dsn":         "POSTGRES_DSN",
	"archive.driver":               "ARCHIVE_DRIVER",
	"archive.fs_root":              "ARCHIVE_FS_ROOT",
	"archive.s3.bucket":            "ARCHIVE_S3_BUCKET",
	"archive.s3.region":            "ARCHIVE_S3_REGION",
	"archive.s3.endpoint":          "ARCHIVE_S3_ENDPOINT",
	"archive.s3.access_key_id":     "ARCHIVE_S3_ACCESS_KEY_ID",
	"archive.s3.secret_access_key": "ARCHIVE_S3_SECRET_ACCESS_KEY",
	"archive.s3.path_style":        "ARCHIVE_S3_PATH_STYLE",
	"redis.addr":                   "REDIS_ADDR",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"redis.stream":                 "REDIS_STREAM",
	"redis.max_len":                "REDIS_MAX_LEN",
	"http.addr":                    "HTTP_ADDR",
	"http.jwt_secret":              "JWT_SECRET",
	"http.jwt_issuer":              "JWT_ISSUER",
	"log.format":                   "LOG_FORMAT",
	"log.level":                    "LOG_LEVEL",
	"ledger.seed_source":           "SEED_SOURCE",
	"ledger.hash":                  "HASH",
	"observability.trace_file":     "TRACE_FILE",
	"observability.expvar_name":    "EXPVAR_NAME",
	"observability.audit":          "AUDIT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", string(ledger.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "./sitcomledger.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("archive.driver", string(archive.DriverFilesystem))
	v.SetDefault("archive.fs_root", "./archive")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("redis.stream", "sitcomledger:notifications")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_issuer", "")
	v.SetDefault("log.format", string(logging.FormatJSON))
	v.SetDefault("log.level", "info")
	v.SetDefault("ledger.seed_source", "random")
	v.SetDefault("ledger.hash", "blake2b")
	v.SetDefault("observability.audit", false)
}

// Load reads env files (".env" when none are given and it exists), then the
// optional config file, then SITCOM_* variables. Later sources win.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file: %w", err)
		}
		return fmt.Errorf("parse env file: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case ledger.StorageMemory, ledger.StorageSQLite, ledger.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == ledger.StoragePostgres && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn: required for postgres"))
	}
	switch c.Archive.Driver {
	case archive.DriverFilesystem, archive.DriverMemory:
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("archive.s3.bucket: required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.driver: unknown driver %q", c.Archive.Driver))
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText, logging.FormatPretty:
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := ledger.SeedSourceByName(c.Ledger.SeedSource); err != nil {
		errs = append(errs, fmt.Errorf("ledger.seed_source: %w", err))
	} else if c.Ledger.SeedSource == ledger.SeedSourceSequence && c.Storage.Driver != ledger.StorageMemory {
		// A sequence restarts with every process and would re-derive journaled identifiers.
		errs = append(errs, fmt.Errorf("ledger.seed_source: %q requires storage.driver %q", ledger.SeedSourceSequence, ledger.StorageMemory))
	}
	if _, err := ledger.HasherByName(c.Ledger.Hash); err != nil {
		errs = append(errs, fmt.Errorf("ledger.hash: %w", err))
	}
	for i, p := range c.Ledger.Awards {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ledger.awards[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// StorageOptions converts the storage section for ledger.OpenPersistentStore.
func (c *Config) StorageOptions() ledger.StorageOptions {
	return ledger.StorageOptions{
		Driver:      c.Storage.Driver,
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// LoggingOptions converts the log section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Format: c.Log.Format, Level: c.Log.Level}
}
