// Package config loads shelterhub settings from SHELTERHUB_* environment
// variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"shelterhub/internal/auth"
	"shelterhub/internal/blob"
	blobcore "shelterhub/internal/blob/core"
	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

// Config is the full process configuration.
type Config struct {
	HTTP struct {
		Addr            string        `env:"SHELTERHUB_HTTP_ADDR,default=:8080"`
		ShutdownTimeout time.Duration `env:"SHELTERHUB_HTTP_SHUTDOWN_TIMEOUT,default=15s"`
		RateLimitRPS    float64       `env:"SHELTERHUB_RATE_LIMIT_RPS,default=20"`
		RateLimitBurst  int           `env:"SHELTERHUB_RATE_LIMIT_BURST,default=40"`
	}
	Log struct {
		Level       string `env:"SHELTERHUB_LOG_LEVEL,default=info"`
		Development bool   `env:"SHELTERHUB_LOG_DEVELOPMENT,default=false"`
		Trace       bool   `env:"SHELTERHUB_LOG_TRACE,default=false"`
	}
	Storage struct {
		Driver      string `env:"SHELTERHUB_STORAGE_DRIVER,default=sqlite"`
		SQLitePath  string `env:"SHELTERHUB_SQLITE_PATH,default=shelterhub.db"`
		PostgresDSN string `env:"SHELTERHUB_POSTGRES_DSN"`
	}
	Blob struct {
		Driver  string `env:"SHELTERHUB_BLOB_DRIVER,default=fs"`
		FSRoot  string `env:"SHELTERHUB_BLOB_FS_ROOT,default=./blobdata"`
		BaseURL string `env:"SHELTERHUB_BLOB_BASE_URL"`
		S3      struct {
			Bucket          string `env:"SHELTERHUB_BLOB_S3_BUCKET"`
			Region          string `env:"SHELTERHUB_BLOB_S3_REGION,default=us-east-1"`
			Endpoint        string `env:"SHELTERHUB_BLOB_S3_ENDPOINT"`
			Prefix          string `env:"SHELTERHUB_BLOB_S3_PREFIX"`
			PathStyle       bool   `env:"SHELTERHUB_BLOB_S3_PATH_STYLE,default=false"`
			AccessKeyID     string `env:"SHELTERHUB_BLOB_S3_ACCESS_KEY_ID"`
			SecretAccessKey string `env:"SHELTERHUB_BLOB_S3_SECRET_ACCESS_KEY"`
		}
	}
	Auth struct {
		TokenSecret string        `env:"SHELTERHUB_TOKEN_SECRET"`
		TokenIssuer string        `env:"SHELTERHUB_TOKEN_ISSUER,default=shelterhub"`
		TokenTTL    time.Duration `env:"SHELTERHUB_TOKEN_TTL,default=12h"`
		BcryptCost  int           `env:"SHELTERHUB_BCRYPT_COST,default=10"`
	}
	Jobs struct {
		BackupSchedule string `env:"SHELTERHUB_BACKUP_SCHEDULE,default=0 3 * * *"`
		SweepSchedule  string `env:"SHELTERHUB_SWEEP_SCHEDULE,default=@hourly"`
	}
	ReportingCurrency string `env:"SHELTERHUB_REPORTING_CURRENCY,default=EUR"`
}

// Load reads the given .env files (missing files are skipped), then decodes
// the environment and validates the result. Variables already present in the
// environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names, secrets and schedules.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("SHELTERHUB_POSTGRES_DSN required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	driver := blobcore.Driver(c.Blob.Driver)
	if !driver.Valid() {
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if driver == blobcore.DriverS3 && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("SHELTERHUB_BLOB_S3_BUCKET required for s3 blob driver"))
	}
	if c.Auth.TokenSecret != "" && len(c.Auth.TokenSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("SHELTERHUB_TOKEN_SECRET must be at least %d bytes", auth.MinSecretLength))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("SHELTERHUB_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	for name, spec := range map[string]string{"backup": c.Jobs.BackupSchedule, "sweep": c.Jobs.SweepSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s schedule %q: %w", name, spec, err))
		}
	}
	if !domain.ValidCurrency(domain.NormalizeCurrency(c.ReportingCurrency)) {
		errs = append(errs, fmt.Errorf("reporting currency %q must be a 3-letter code", c.ReportingCurrency))
	}
	return errors.Join(errs...)
}

// RequireTokenSecret fails when no session secret is configured.
func (c Config) RequireTokenSecret() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("SHELTERHUB_TOKEN_SECRET is required to serve the API")
	}
	return nil
}

// StorageConfig maps the storage section to the core storage selector.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig maps the blob section to the blob driver selector.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:  blobcore.Driver(c.Blob.Driver),
		FSRoot:  c.Blob.FSRoot,
		BaseURL: c.Blob.BaseURL,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			Prefix:          c.Blob.S3.Prefix,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
		},
	}
}
