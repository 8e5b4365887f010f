package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/sirupsen/logrus"
)

const writeTestKey = ".circleboard-write-test"

// s3Backend keeps one object per key under the configured prefix.
type s3Backend struct {
	log    logrus.FieldLogger
	cfg    *config.S3StorageConfig
	client *s3.Client
}

func newS3Backend(log logrus.FieldLogger, cfg *config.S3StorageConfig) *s3Backend {
	return &s3Backend{
		log:    log,
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

// start verifies connectivity by writing a small test object.
func (b *s3Backend) start(ctx context.Context) error {
	content := fmt.Sprintf("circleboard write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.objectKey(writeTestKey)),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", b.cfg.Bucket, err)
	}

	b.log.WithFields(logrus.Fields{
		"bucket": b.cfg.Bucket,
		"prefix": b.cfg.Prefix,
	}).Info("S3 storage reachable")

	return nil
}

func (b *s3Backend) stop() error {
	return nil
}

func (b *s3Backend) objectKey(key string) string {
	if b.cfg.Prefix == "" {
		return key
	}

	return path.Join(strings.Trim(b.cfg.Prefix, "/"), key)
}

// get returns (nil, nil) when the object does not exist.
func (b *s3Backend) get(ctx context.Context, key string) ([]byte, error) {
	objectKey := b.objectKey(key)

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", objectKey, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", objectKey, err)
	}

	return data, nil
}

func (b *s3Backend) put(ctx context.Context, key string, value []byte) error {
	objectKey := b.objectKey(key)

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", objectKey, err)
	}

	return nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.S3StorageConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
