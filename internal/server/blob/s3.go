package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/avezhov/filestorage/internal/server/config"
)

// Seams for testing the S3 interactions without a live endpoint.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
)

// S3Store keeps blobs in an S3-compatible bucket (e.g. MinIO) under the
// key <user>/<catalog>/<name>. Overwrites are plain puts: object stores
// replace keys atomically.
type S3Store struct {
	bucket string
	client *s3.Client
}

func NewS3Store(cfg *sc.Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{bucket: cfg.S3Bucket, client: client}, nil
}

func (s *S3Store) Write(ctx context.Context, user, catalog, name string, src io.Reader, overwrite bool) error {
	key := objectKey(user, path.Join(catalog, name))

	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   src,
	})
	if err != nil {
		return fmt.Errorf("can't put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, user, p string) (io.ReadCloser, error) {
	key := objectKey(user, p)

	out, err := getObject(s.client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("can't get object %s: %w", key, err)
	}
	return out.Body, nil
}

func objectKey(user, p string) string {
	return user + "/" + strings.TrimPrefix(p, "/")
}
