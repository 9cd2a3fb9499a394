package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/graphsync/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of *s3.Client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads sources from one bucket. Source.Path is the object key.
type S3Loader struct {
	bucket string
	client ObjectGetter
	cache  *loader.Cache
}

// NewS3LoaderWithClient reuses a configured client, e.g. the one from
// internal/storage.
func NewS3LoaderWithClient(bucket string, client ObjectGetter) *S3Loader {
	return &S3Loader{bucket: bucket, client: client, cache: loader.NewCache()}
}

// NewS3LoaderParams configures a loader with static credentials. Endpoint
// allows S3 compatible storage such as MinIO.
type NewS3LoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Loader creates an S3Loader with its own client.
//
// Example:
//
//	l, err := s3.NewS3Loader(ctx, s3.NewS3LoaderParams{
//		Bucket:    "documents",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
func NewS3Loader(ctx context.Context, params NewS3LoaderParams) (*S3Loader, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = params.Endpoint != ""
	})
	return NewS3LoaderWithClient(params.Bucket, client), nil
}

func (l *S3Loader) Load(ctx context.Context, src loader.Source) ([]byte, error) {
	return l.cache.Get(loader.CacheKey(src), func() ([]byte, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(src.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get %s from s3: %w", src.Path, err)
		}
		defer out.Body.Close()

		return io.ReadAll(out.Body)
	})
}
