package streaming

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver durably uploads the canonical JSON of a delivery-audit record
// to object storage and reports the key it landed under, so the caller
// can persist the S3 pointer alongside the row. Adapted from
// kernel/internal/audit/s3_archiver.go, collapsed to a single method:
// the teacher's split Archive/ArchiveAndReturnKey pair existed because
// some callers there discarded the key, but every caller here needs it
// for delivery_audit_log.s3_object_key, so the split added a call path
// with no corresponding use.
type Archiver interface {
	ArchiveAndReturnKey(ctx context.Context, rec *Record) (string, error)
}

// S3Archiver writes records to s3://<bucket>/<prefix>/deliveries/YYYY/MM/DD/<id>.json.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver constructs an S3Archiver. Credentials/region are
// resolved from the environment by the AWS SDK's default chain.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("streaming: bucket required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("streaming: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: manager.NewUploader(client)}, nil
}

func (a *S3Archiver) objectKey(rec *Record) string {
	ts := time.Now().UTC()
	if !rec.Ts.IsZero() {
		ts = rec.Ts
	}
	year, month, day := ts.Date()
	return path.Join(a.prefix, "deliveries",
		fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)), fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", rec.ID))
}

// ArchiveAndReturnKey canonicalizes rec's signed envelope, uploads it
// under server-side encryption (SSE-S3), and returns the key it landed
// under.
func (a *S3Archiver) ArchiveAndReturnKey(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("streaming: nil record")
	}

	canonBytes, err := canonicalRecordBytes(rec)
	if err != nil {
		return "", fmt.Errorf("streaming: canonicalize envelope: %w", err)
	}

	key := a.objectKey(rec)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(canonBytes),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("streaming: s3 upload: %w", err)
	}
	return key, nil
}

var _ Archiver = (*S3Archiver)(nil)
