package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"idb-go/internal/idb"
)

// S3Store implements the AttachmentStore interface on an S3-compatible
// backend (AWS S3 or MinIO). Attachment keys map to object keys directly,
// below an optional prefix.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3Config holds explicit construction parameters. Credentials fall back to
// the default AWS credentials chain when not set.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional; if set enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional
	SecretAccessKey string // optional
	PathStyle       bool
}

// NewS3Store creates an S3 attachment store from S3Config.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Put uploads the bytes from r under key, replacing any previous content.
// The upload manager splits large attachments into multipart uploads.
func (s *S3Store) Put(key string, r io.Reader) error {
	objKey := s.objectKey(key)
	_, err := s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading attachment %s: %w", key, err)
	}
	return nil
}

// Get downloads the content stored under key and writes it to w.
func (s *S3Store) Get(key string, w io.Writer) error {
	objKey := s.objectKey(key)
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("attachment not found: %s", key)
		}
		return fmt.Errorf("downloading attachment %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading attachment %s: %w", key, err)
	}
	return nil
}

// Exists reports whether an object is stored under key.
func (s *S3Store) Exists(key string) (bool, error) {
	objKey := s.objectKey(key)
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking attachment %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the object stored under key. Deleting a missing key is a no-op.
func (s *S3Store) Delete(key string) error {
	objKey := s.objectKey(key)
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		return fmt.Errorf("deleting attachment %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies that the bucket is reachable.
func (s *S3Store) ValidateSetup() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// Compile-time check that S3Store implements the AttachmentStore interface
var _ idb.AttachmentStore = (*S3Store)(nil)
