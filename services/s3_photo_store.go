package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ticrm/tire-storage-api/config"
)

// S3API is the subset of the S3 client used by S3PhotoStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3PhotoStore keeps photos in an S3-compatible bucket
type S3PhotoStore struct {
	client    S3API
	bucket    string
	publicURL string
}

// NewS3PhotoStore initializes the S3 client with AWS credentials
func NewS3PhotoStore(ctx context.Context, cfg *config.Config) (*S3PhotoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		// Custom endpoints (MinIO, R2, Yandex Object Storage) need path-style addressing.
		if cfg.AWSS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSS3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3PhotoStoreWithClient(client, cfg.AWSS3Bucket, s3PublicURL(cfg)), nil
}

// NewS3PhotoStoreWithClient builds a store around an existing client.
func NewS3PhotoStoreWithClient(client S3API, bucket, publicURL string) *S3PhotoStore {
	return &S3PhotoStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func s3PublicURL(cfg *config.Config) string {
	if cfg.AWSS3PublicURL != "" {
		return cfg.AWSS3PublicURL
	}
	if cfg.AWSS3Endpoint != "" {
		return strings.TrimRight(cfg.AWSS3Endpoint, "/") + "/" + cfg.AWSS3Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.AWSS3Bucket, cfg.AWSRegion)
}

func (s *S3PhotoStore) Backend() string {
	return BackendS3
}

// Upload puts data under key path and returns its public URL
func (s *S3PhotoStore) Upload(ctx context.Context, data []byte, path, contentType string) (*UploadResult, error) {
	key := strings.TrimLeft(path, "/")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{URL: s.publicURL + "/" + key, Backend: BackendS3}, nil
}

// Delete removes the object behind a URL previously returned by Upload
func (s *S3PhotoStore) Delete(ctx context.Context, url string) error {
	key := s.keyFromURL(url)
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *S3PhotoStore) keyFromURL(url string) string {
	if strings.HasPrefix(url, s.publicURL+"/") {
		return strings.TrimPrefix(url, s.publicURL+"/")
	}
	return strings.TrimLeft(url, "/")
}
