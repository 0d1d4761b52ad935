package archive

import (
	"context"
	"fmt"

	"sitcomledger/internal/infra/archive/fs"
	"sitcomledger/internal/infra/archive/memory"
	"sitcomledger/internal/infra/archive/s3"
)

// S3Options configures the s3 driver.
type S3Options struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// Options selects and configures an archive backend. The empty driver selects fs.
type Options struct {
	Driver Driver    `mapstructure:"driver"`
	FSRoot string    `mapstructure:"fs_root"`
	S3     S3Options `mapstructure:"s3"`
}

// Open constructs the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		store, err := fs.New(opts.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          opts.S3.Bucket,
			Region:          opts.S3.Region,
			Endpoint:        opts.S3.Endpoint,
			AccessKeyID:     opts.S3.AccessKeyID,
			SecretAccessKey: opts.S3.SecretAccessKey,
			PathStyle:       opts.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
