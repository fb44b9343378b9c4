// Package blob opens the configured blob store driver.
package blob

import (
	"context"
	"fmt"

	"shelterhub/internal/blob/core"
	"shelterhub/internal/infra/blob/fs"
	"shelterhub/internal/infra/blob/memory"
	"shelterhub/internal/infra/blob/s3"
)

type (
	// Store is the blob storage contract.
	Store = core.Store
	// Driver names a blob backend.
	Driver = core.Driver
	// S3Config configures the s3 driver.
	S3Config = s3.Config
)

// Config selects and parameterizes a blob driver.
type Config struct {
	Driver  Driver
	FSRoot  string
	BaseURL string
	S3      S3Config
}

// Open returns the store named by cfg.Driver, defaulting to the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		return fs.New(cfg.FSRoot, cfg.BaseURL)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
