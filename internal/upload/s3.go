package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transport writes each submission file to s3://bucket/prefix/<instance folder>/.
type S3Transport struct {
	client S3API
}

func NewS3Transport(client S3API) *S3Transport {
	return &S3Transport{client: client}
}

// NewS3Client builds an S3 client. Static credentials are used when
// accessKey is set, otherwise the default AWS credential chain. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ParseS3URL splits s3://bucket/prefix into bucket and prefix.
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func (t *S3Transport) Submit(ctx context.Context, rawURL string, s Submission) (string, error) {
	bucket, prefix, err := ParseS3URL(rawURL)
	if err != nil {
		return "", &UploadError{URL: rawURL, Err: err}
	}
	folder := filepath.Base(filepath.Dir(s.InstanceFile))

	files := append([]string{s.InstanceFile}, s.Attachments...)
	for _, f := range files {
		key := path.Join(prefix, folder, filepath.Base(f))
		if err := t.put(ctx, bucket, key, f); err != nil {
			return "", &UploadError{URL: rawURL, Err: err}
		}
	}
	return fmt.Sprintf("uploaded %d files to s3://%s/%s", len(files), bucket, path.Join(prefix, folder)), nil
}

func (t *S3Transport) put(ctx context.Context, bucket, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(file)),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
