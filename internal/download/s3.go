package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const s3Scheme = "s3://"

const defaultS3Region = "us-east-1"

// ErrNoS3Client is returned for s3:// URLs when the Fetcher has no S3 client
var ErrNoS3Client = errors.New("no S3 client configured")

// ObjectGetter is the S3 operation used to fetch archives.
// The *s3.Client type satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3ClientFromEnv builds an S3 client from the standard AWS environment
// variables. AWS_ENDPOINT_URL selects an S3-compatible store (MinIO, R2) with
// path-style addressing; without AWS_ACCESS_KEY_ID requests are anonymous.
func NewS3ClientFromEnv() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultS3Region
	}

	opts := s3.Options{Region: region}

	if keyID := os.Getenv("AWS_ACCESS_KEY_ID"); keyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     keyID,
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}

	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}

	return s3.New(opts)
}

// parseS3URL splits s3://bucket/key
func parseS3URL(url string) (bucket, key string, err error) {
	bucket, key, found := strings.Cut(strings.TrimPrefix(url, s3Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q, want s3://bucket/key", url)
	}
	return bucket, key, nil
}

func (f *Fetcher) openS3(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.S3 == nil {
		return nil, ErrNoS3Client
	}

	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}

	out, err := f.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("s3 object %s/%s: %w", bucket, key, os.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
