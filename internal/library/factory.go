package library

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cx-go/internal/config"
	"cx-go/internal/cx"
)

// Library is a project hierarchy that can also load its own files.
type Library interface {
	cx.Hierarchy
	cx.DocumentService
}

// NewLibraryFromConfig creates a Library implementation based on the library config type.
func NewLibraryFromConfig(ctx context.Context, cfg config.LibraryConfig) (Library, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryLibrary(), nil
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem library requires root to be set")
		}
		return NewFileSystemLibrary(cfg.Root, cfg.Ignore)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 library requires s3_bucket to be set")
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Library(client, cfg.S3Bucket, cfg.S3Prefix, cfg.Ignore), nil
	default:
		return nil, fmt.Errorf("unknown library type: %s", cfg.Type)
	}
}

// newS3Client loads the default AWS configuration chain. Static keys from
// the config take precedence, and a custom endpoint switches to path-style
// addressing for S3-compatible stores.
func newS3Client(ctx context.Context, cfg config.LibraryConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
