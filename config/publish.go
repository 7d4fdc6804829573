package config

import "sync"

var (
	publishOnce   sync.Once
	publishConfig *PublishConfig
)

// PublishConfig locates the S3 bucket that serves the generated sites.
type PublishConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	BaseURL   string
}

func GetPublishConfig() *PublishConfig {
	publishOnce.Do(func() {
		loadEnv()
		publishConfig = &PublishConfig{
			Region:    getenv("PUBLISH_S3_REGION", "us-east-1"),
			AccessKey: getenv("PUBLISH_S3_ACCESS_KEY", ""),
			SecretKey: getenv("PUBLISH_S3_SECRET_KEY", ""),
			Bucket:    getenv("PUBLISH_S3_BUCKET", "storyloom-sites"),
			Prefix:    getenv("PUBLISH_S3_PREFIX", "sites"),
			BaseURL:   getenv("PUBLISH_BASE_URL", ""),
		}
	})
	return publishConfig
}
