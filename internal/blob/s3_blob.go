package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store puts event payload blobs into a single bucket, with server-side
// encryption: AES256 by default, or aws:kms when a KMS key id is
// configured (spec.md §4.7). Adapted from
// kernel/internal/audit/s3_archiver.go's uploader usage.
type S3Store struct {
	bucket   string
	kmsKeyID string
	uploader *manager.Uploader
}

// NewS3Store constructs an S3Store. If endpointURL is non-empty it is used
// as a custom endpoint (local emulation, e.g. via AWS_ENDPOINT_URL).
func NewS3Store(ctx context.Context, bucket, region, endpointURL, kmsKeyID string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blob: bucket required")
	}

	opts := []func(*awsConfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		bucket:   bucket,
		kmsKeyID: kmsKeyID,
		uploader: manager.NewUploader(client),
	}, nil
}

// Put uploads body under key with the given content type. Server-side
// encryption is always requested: SSE-KMS when kmsKeyID is configured,
// SSE-S3 (AES256) otherwise.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if s.kmsKeyID != "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)
