// Package storage uploads employee photos and signatures to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured is returned when no bucket is configured; the upload
// endpoint then reports the feature as unavailable instead of failing later.
var ErrNotConfigured = errors.New("storage: bucket is not configured")

// Uploader writes objects to one S3 bucket.
type Uploader struct {
	client    *s3.Client
	bucket    string
	region    string
	publicURL string
}

// New builds an uploader from the configured bucket and region. An empty
// bucket yields a disabled uploader that reports ErrNotConfigured on use.
func New(ctx context.Context, bucket, region, publicURL string) (*Uploader, error) {
	u := &Uploader{bucket: bucket, region: region, publicURL: strings.TrimSuffix(publicURL, "/")}
	if bucket == "" {
		return u, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	u.client = s3.NewFromConfig(cfg)
	return u, nil
}

// Enabled reports whether uploads are configured.
func (u *Uploader) Enabled() bool { return u.client != nil }

// Put stores one object and returns its public URL.
func (u *Uploader) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if !u.Enabled() {
		return "", ErrNotConfigured
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return u.ObjectURL(key), nil
}

// ObjectURL resolves the public URL for a stored key.
func (u *Uploader) ObjectURL(key string) string {
	if u.publicURL != "" {
		return u.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}
