// Package storage handles both ends of the bucket migration: listing raw
// archives from the source bucket and multipart-uploading repacked archives
// to the target. Built on the AWS SDK so any S3-compatible endpoint works.
package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reshelve/internal/config"
	"reshelve/internal/grouping"
)

// NewS3Client builds an S3 client for one configured bucket. Custom endpoints
// switch to path-style addressing, which every self-hosted S3 implementation
// expects.
func NewS3Client(ctx context.Context, bucket config.Bucket) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if bucket.Region != "" {
		opts = append(opts, awsconfig.WithRegion(bucket.Region))
	}
	if bucket.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(bucket.AccessKey, bucket.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if bucket.Endpoint != "" {
			o.BaseEndpoint = aws.String(bucket.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectLister is the slice of the S3 API the source listing needs.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Source lists raw archives from the origin bucket.
type Source struct {
	api    ObjectLister
	bucket string
	prefix string
}

// NewSource constructs a source lister.
func NewSource(api ObjectLister, bucket, prefix string) *Source {
	return &Source{api: api, bucket: bucket, prefix: prefix}
}

// List walks the full bucket listing under the configured prefix. Zero-size
// objects and directory markers are dropped.
func (s *Source) List(ctx context.Context) ([]grouping.Object, error) {
	var objects []grouping.Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}
	for {
		page, err := s.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			size := aws.ToInt64(object.Size)
			if key == "" || strings.HasSuffix(key, "/") || size == 0 {
				continue
			}
			objects = append(objects, grouping.Object{Key: key, Size: size})
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}
	return objects, nil
}

// ObjectKey builds the target layout: <prefix>/<gameID>/<resourceID>/<file>.
func ObjectKey(keyPrefix string, gameID, resourceID int64, fileName string) string {
	return path.Join(keyPrefix, strconv.FormatInt(gameID, 10), strconv.FormatInt(resourceID, 10), fileName)
}
