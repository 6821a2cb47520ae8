package s3archive

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/solutionargentrapide/paygate/internal/pkg/env"
)

// Config holds S3 archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	RetentionDays   int    // processed events older than this are archived
	Enabled         bool
}

// LoadConfig loads S3 archive configuration from environment variables
func LoadConfig() (*Config, error) {
	retention := 90
	if v, err := strconv.Atoi(env.GetEnv("S3_ARCHIVE_RETENTION_DAYS", "90")); err == nil && v > 0 {
		retention = v
	}

	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		RetentionDays:   retention,
		Enabled:         env.GetEnv("S3_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// Cutoff returns the archival cutoff derived from the retention window.
func (c *Config) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.RetentionDays)
}

// GetObjectKey generates a standardized S3 object key for an archive batch
func (c *Config) GetObjectKey(now time.Time) string {
	// Format: webhooks/YYYY/MM/raw-events-<unix>.jsonl
	return fmt.Sprintf("webhooks/%04d/%02d/raw-events-%d.jsonl", now.Year(), int(now.Month()), now.Unix())
}

// GetBucketName returns the bucket name as configured
func (c *Config) GetBucketName() string {
	return c.BucketName
}
