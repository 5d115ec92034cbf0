package renderer

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/vango-web/internal/config"
	"github.com/vango-dev/vango-web/internal/errors"
	"github.com/vango-dev/vango-web/pkg/ingest"
)

// NewIngestStore builds the store named by cfg.Ingest: an S3 bucket when
// ingest.s3 is set, otherwise a local directory.
func NewIngestStore(cfg *config.Config) (ingest.Store, error) {
	if s3cfg := cfg.Ingest.S3; s3cfg != nil {
		client := NewS3Client(s3cfg)
		return ingest.NewS3Store(client, s3cfg.Bucket, s3cfg.Prefix, cfg.Ingest.MaxFileSize).
			WithPresigner(s3.NewPresignClient(client)), nil
	}

	store, err := ingest.NewDiskStore(cfg.IngestPath(), cfg.Ingest.MaxFileSize)
	if err != nil {
		return nil, errors.New("R060").
			WithDetail("ingest.dir is not usable: " + err.Error()).
			Wrap(err)
	}
	return store, nil
}

// NewS3Client creates an S3 client for cfg. Credentials come from the
// standard AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN
// environment variables; the region falls back to AWS_REGION.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(envCredentials{}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

type envCredentials struct{}

func (envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, errors.Newf(errors.CategoryIngest, "AWS credentials are not set in the environment")
	}
	return creds, nil
}
