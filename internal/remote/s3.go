// Package remote ships archives to S3-compatible object storage and fetches
// them back. Object names are generated here and opaque to the storage layer.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// ObjectClient is the storage surface the engine depends on.
type ObjectClient interface {
	// Upload stores the file at localPath and returns the generated object
	// name and the uploaded byte size. Uploads are never retried; a failed
	// upload fails the job.
	Upload(ctx context.Context, localPath string, jobID int64) (string, int64, error)
	// Download fetches an object into localPath.
	Download(ctx context.Context, objectName, localPath string) error
	// Delete removes an object.
	Delete(ctx context.Context, objectName string) error
}

// s3Client is an interface over the AWS SDK client for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Configured reports whether the config carries enough to build a client.
func (c Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3Store implements ObjectClient on top of an S3-compatible bucket.
type S3Store struct {
	client s3Client
	bucket string
}

func NewS3Store(cfg Config) *S3Store {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Store{client: s3.New(opts), bucket: cfg.Bucket}
}

// objectName builds an opaque, collision-free object name for a job archive.
func objectName(jobID int64, ext string) string {
	return fmt.Sprintf("archives/%s/job-%d-%s%s",
		time.Now().UTC().Format("2006-01"), jobID, uuid.NewString(), ext)
}

func (s *S3Store) Upload(ctx context.Context, localPath string, jobID int64) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}

	name := objectName(jobID, ext(localPath))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload object: %w", err)
	}
	return name, stat.Size(), nil
}

func ext(path string) string {
	for _, e := range []string{".tar.gz.enc", ".tar.gz"} {
		if len(path) >= len(e) && path[len(path)-len(e):] == e {
			return e
		}
	}
	return ""
}

// Download fetches the object into localPath, retrying transient failures
// with capped exponential backoff.
func (s *S3Store) Download(ctx context.Context, name, localPath string) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.downloadOnce(ctx, name, localPath); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *S3Store) downloadOnce(ctx context.Context, name, localPath string) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("download object %s: %w", name, err)
	}
	defer result.Body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		os.Remove(localPath)
		return fmt.Errorf("write downloaded object: %w", err)
	}
	return out.Close()
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}
