package storage

import (
	"fmt"

	"github.com/rowjay/s3backup/internal/config"
)

// New builds the driver selected by cfg.Driver.
func New(cfg config.RemoteConfig) (Store, error) {
	opts := S3Options{
		Endpoint:     cfg.Endpoint,
		Region:       cfg.Region,
		Bucket:       cfg.Bucket,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		SessionToken: cfg.SessionToken,
		UseSSL:       cfg.UseSSL,
		PathStyle:    cfg.PathStyle != "virtual-host",
		Insecure:     cfg.TLSInsecureSkip,
	}
	switch cfg.Driver {
	case "minio", "":
		if cfg.Endpoint == "" || cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 endpoint and bucket are required")
		}
		return NewS3(opts)
	case "aws":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return NewAWS(opts), nil
	case "filesystem":
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("local_path is required for the filesystem driver")
		}
		return NewLocal(cfg.LocalPath), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
