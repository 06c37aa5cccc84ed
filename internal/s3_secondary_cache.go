package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/eavcache"
)

var _ eavcache.SecondaryCache = (*S3SecondaryCache)(nil)

// S3API is the subset of the S3 client used by S3SecondaryCache.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3SecondaryCache stores snapshots as objects under <prefix>/data/<key>. Each tag is an empty
// marker object <prefix>/tags/<tag>/<key>.
type S3SecondaryCache struct {
	client    S3API
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	keyPrefix string
}

// NewS3Client builds an S3 client from static credentials or the default AWS chain.
func NewS3Client(ctx context.Context, cfg eavcache.S3Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3SecondaryCache stores objects in bucket below prefix; keyPrefix is prepended to every key.
func NewS3SecondaryCache(client S3API, bucket, prefix, keyPrefix string) *S3SecondaryCache {
	return &S3SecondaryCache{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		keyPrefix: keyPrefix,
	}
}

func (s *S3SecondaryCache) Enabled() bool { return true }

func (s *S3SecondaryCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.dataKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, true, nil
}

// Save writes the tag markers before the data object so a stored snapshot is always reachable
// by Invalidate. A marker without data is skipped by Quiet deletes.
func (s *S3SecondaryCache) Save(ctx context.Context, key string, data []byte, tags []string) error {
	for _, tag := range tags {
		if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.tagKey(tag, key)),
			Body:   bytes.NewReader(nil),
		}); err != nil {
			return fmt.Errorf("s3 tag %s/%s: %w", tag, key, err)
		}
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.dataKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes the data objects named by the tag markers, then the markers themselves.
func (s *S3SecondaryCache) Invalidate(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		markerPrefix := s.tagPrefix(tag)
		var objects []types.ObjectIdentifier

		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(markerPrefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("s3 list tag %s: %w", tag, err)
			}
			for _, object := range page.Contents {
				marker := aws.ToString(object.Key)
				objects = append(objects,
					types.ObjectIdentifier{Key: aws.String(s.join("data", strings.TrimPrefix(marker, markerPrefix)))},
					types.ObjectIdentifier{Key: aws.String(marker)},
				)
			}
		}

		for start := 0; start < len(objects); start += 1000 {
			end := min(start+1000, len(objects))
			if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: objects[start:end], Quiet: aws.Bool(true)},
			}); err != nil {
				return fmt.Errorf("s3 delete tag %s: %w", tag, err)
			}
		}
	}
	return nil
}

func (s *S3SecondaryCache) dataKey(key string) string {
	return s.join("data", s.keyPrefix+key)
}

func (s *S3SecondaryCache) tagPrefix(tag string) string {
	return s.join("tags", tag) + "/"
}

func (s *S3SecondaryCache) tagKey(tag, key string) string {
	return s.tagPrefix(tag) + s.keyPrefix + key
}

func (s *S3SecondaryCache) join(elem ...string) string {
	if s.prefix == "" {
		return path.Join(elem...)
	}
	return path.Join(append([]string{s.prefix}, elem...)...)
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
