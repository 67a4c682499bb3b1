// Package publish uploads the built site to an S3 compatible bucket.
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/conneroisu/frontbuild/internal/config"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// ObjectPutter is the part of the S3 client the publisher uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Stats summarizes one publish run.
type Stats struct {
	Uploaded int
	Failed   int
	Bytes    int64
}

// Publisher uploads a directory tree under a key prefix.
type Publisher struct {
	Client ObjectPutter
	Bucket string
	Prefix string
	logger logging.Logger
}

// New creates a publisher.
func New(client ObjectPutter, bucket, prefix string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		Client: client,
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
		logger: logger.WithComponent("publish"),
	}
}

// NewS3Client builds an S3 client from the publish settings and the standard
// AWS_* credential variables.
func NewS3Client(cfg config.PublishConfig) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.ConfigurationError("publish.bucket", "a bucket is required", cfg.Bucket)
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	sessionToken := os.Getenv("AWS_SESSION_TOKEN")

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    sessionToken,
				Source:          "frontbuild-env",
			}, nil
		})),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// Publish uploads every regular file under dir. A failed upload is logged
// and the remaining files are still uploaded.
func (p *Publisher) Publish(ctx context.Context, dir string) (Stats, error) {
	var stats Stats

	if _, err := os.Stat(dir); err != nil {
		return stats, errors.FileOperationError("stat", dir, "nothing to publish", err)
	}

	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := p.Key(rel)

		data, err := os.ReadFile(file)
		if err != nil {
			p.logger.Error(ctx, err, "Failed to read file", "file", file)
			stats.Failed++
			return nil
		}

		contentType, encoding := ContentType(rel)
		input := &s3.PutObjectInput{
			Bucket:      aws.String(p.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		}
		if encoding != "" {
			input.ContentEncoding = aws.String(encoding)
		}

		if _, err := p.Client.PutObject(ctx, input); err != nil {
			p.logger.Error(ctx, err, "Upload failed", "key", key)
			stats.Failed++
			return nil
		}
		p.logger.Debug(ctx, "Uploaded", "key", key, "bytes", len(data))
		stats.Uploaded++
		stats.Bytes += int64(len(data))
		return nil
	})
	if err != nil {
		return stats, errors.NewNetworkError(errors.ErrCodePublishFailed, "publish interrupted", err)
	}

	p.logger.Info(ctx, "Published site", "bucket", p.Bucket, "prefix", p.Prefix, "files", stats.Uploaded, "failed", stats.Failed)
	if stats.Failed > 0 {
		return stats, errors.NewNetworkError(errors.ErrCodePublishFailed, "some files failed to upload", nil)
	}
	return stats, nil
}

// Key maps a path relative to the published directory to an object key.
func (p *Publisher) Key(rel string) string {
	rel = filepath.ToSlash(rel)
	if p.Prefix == "" {
		return rel
	}
	return path.Join(p.Prefix, rel)
}

// ContentType returns the content type of a file name and, for brotli
// siblings, the content encoding.
func ContentType(name string) (contentType, encoding string) {
	if strings.HasSuffix(name, ".br") {
		name = strings.TrimSuffix(name, ".br")
		encoding = "br"
	}
	contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, encoding
}
