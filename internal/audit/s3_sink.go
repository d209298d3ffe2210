package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultArchivePrefix is the key prefix for archived records.
const DefaultArchivePrefix = "audit"

// storageGroup is the key segment used for storage object records.
const storageGroup = "storage"

// objectPutter is the subset of the S3 client used by S3ArchiveSink.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveConfig holds configuration for an S3-compatible (R2) archive bucket.
type S3ArchiveConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string // Default: "auto"
	Prefix          string // Default: DefaultArchivePrefix
}

// S3ArchiveSink writes one JSON object per record to a bucket.
type S3ArchiveSink struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3ArchiveSink creates an archive sink with its own S3 client.
func NewS3ArchiveSink(cfg S3ArchiveConfig) (*S3ArchiveSink, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return newS3ArchiveSink(client, cfg.BucketName, cfg.Prefix), nil
}

func newS3ArchiveSink(client objectPutter, bucket, prefix string) *S3ArchiveSink {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return &S3ArchiveSink{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Emit uploads rec as <prefix>/<collection>/<yyyy>/<mm>/<dd>/<id>.json.
func (s *S3ArchiveSink) Emit(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	key := s.objectKey(rec)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"operation": string(rec.Operation),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive audit record %s: %w", key, err)
	}
	return nil
}

func (s *S3ArchiveSink) objectKey(rec Record) string {
	group := rec.Collection
	if group == "" {
		group = storageGroup
	}
	ts := rec.RecordedAt.UTC()
	return path.Join(
		s.prefix,
		group,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		rec.ID+".json",
	)
}
