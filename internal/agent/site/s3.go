package site

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/pkg/logger"
)

// S3Publisher uploads the site artifact to an S3 bucket that serves static
// content.
type S3Publisher struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
	logger  logger.Logger
}

// NewS3Publisher builds the publisher from configuration.
func NewS3Publisher(ctx context.Context, c *cfg.PublishConfig, log logger.Logger) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Publisher{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  c.Bucket,
		prefix:  c.Prefix,
		baseURL: c.BaseURL,
		logger:  log,
	}, nil
}

// Publish implements Publisher.
func (p *S3Publisher) Publish(ctx context.Context, projectID string, pages []Page) (string, error) {
	for _, page := range pages {
		key := path.Join(p.prefix, projectID, page.Path)
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(page.Body),
			ContentType: aws.String(page.ContentType),
		})
		if err != nil {
			p.logger.Error("failed to upload site page",
				logger.String("bucket", p.bucket),
				logger.String("key", key),
				logger.Error(err),
			)
			return "", fmt.Errorf("upload %s: %w", page.Path, err)
		}
	}

	url := p.baseURL
	if url == "" {
		url = fmt.Sprintf("https://%s.s3.amazonaws.com", p.bucket)
	}
	return fmt.Sprintf("%s/%s", url, path.Join(p.prefix, projectID)), nil
}
