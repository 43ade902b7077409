package blob

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// EnsureSecureBucket creates the events bucket if it does not already
// exist and enforces the security posture spec.md §4.7 requires: all
// public access blocked, default server-side encryption enabled.
//
// Adapted from original_source/backend/app/storage/boot_s3.py, which has
// no direct analog in the teacher repo — the AWS SDK v2 calls below are
// the Go equivalents of the boto3 head_bucket/create_bucket/
// put_public_access_block/put_bucket_encryption sequence.
func EnsureSecureBucket(ctx context.Context, bucket, region, endpointURL, kmsKeyID string) error {
	if bucket == "" {
		return fmt.Errorf("blob: bucket required")
	}

	opts := []func(*awsConfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	// Mirror original_source's bare "except ClientError: create_bucket":
	// any HeadBucket failure (not-found or otherwise) is treated as
	// "bucket needs creating"; CreateBucket against an already-existing
	// bucket owned by us is a harmless no-op error we ignore here since
	// the subsequent public-access-block/encryption calls are idempotent
	// and are what actually matters.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		createIn := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if region != "" && region != "us-east-1" {
			createIn.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(region),
			}
		}
		_, _ = client.CreateBucket(ctx, createIn)
	}

	_, err = client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("block public access: %w", err)
	}

	rule := types.ServerSideEncryptionRule{
		ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
			SSEAlgorithm: types.ServerSideEncryptionAes256,
		},
		BucketKeyEnabled: aws.Bool(true),
	}
	if kmsKeyID != "" {
		rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm = types.ServerSideEncryptionAwsKms
		rule.ApplyServerSideEncryptionByDefault.KMSMasterKeyID = aws.String(kmsKeyID)
	}

	_, err = client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(bucket),
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
			Rules: []types.ServerSideEncryptionRule{rule},
		},
	})
	if err != nil {
		return fmt.Errorf("put bucket encryption: %w", err)
	}

	return nil
}
