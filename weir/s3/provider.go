// Package s3 provides an S3-compatible provider for weir.
//
// It works against AWS S3, MinIO, LocalStack, Cloudflare R2, and other
// S3-compatible object stores. Metadata comes from HeadObject
// (ContentLength + LastModified), content from ranged GetObject calls, so
// reads are true range reads rather than simulated full downloads.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/weir/weir"
)

// API defines the subset of the S3 client interface used by the provider.
// This enables testing with mock implementations.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds configuration for the S3 provider.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// If set, all keys are prefixed with this value (with a trailing
	// slash added if missing).
	Prefix string
}

// Provider implements weir.Provider backed by an S3 bucket.
type Provider struct {
	client API
	bucket string
	prefix string
}

var _ weir.Provider = (*Provider)(nil)

// New creates an S3 provider with the given client and configuration.
func New(client API, cfg Config) (*Provider, error) {
	if client == nil {
		return nil, errors.New("s3: client must not be nil")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket must not be empty")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Provider{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Metadata implements weir.MetadataPort via HeadObject.
func (p *Provider) Metadata(ctx context.Context, id weir.FileID) (weir.Metadata, error) {
	key, err := p.key(id)
	if err != nil {
		return weir.Metadata{}, err
	}

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return weir.Metadata{}, weir.ErrNotFound
		}
		return weir.Metadata{}, fmt.Errorf("s3: head object: %w", err)
	}

	return weir.Metadata{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// ReadAt implements weir.ContentPort via a ranged GetObject.
func (p *Provider) ReadAt(ctx context.Context, id weir.FileID, buf []byte, off int64) (int, error) {
	key, err := p.key(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, weir.ErrInvalidPath
	}
	if len(buf) == 0 {
		return 0, nil
	}

	// S3 Range header format: "bytes=start-end" (inclusive).
	end := off + int64(len(buf)) - 1
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, weir.ErrNotFound
		}
		// InvalidRange means the offset is at or beyond EOF.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, nil
		}
		return 0, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		// The object is shorter than the requested range; short counts
		// are fine for the content port.
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("s3: reading range body: %w", err)
	}
	return n, nil
}

// key validates a file identifier and prepends the configured prefix.
func (p *Provider) key(id weir.FileID) (string, error) {
	k := string(id)
	if k == "" || strings.HasPrefix(k, "/") {
		return "", weir.ErrInvalidPath
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", weir.ErrInvalidPath
		}
	}
	return p.prefix + k, nil
}

// isNotFound reports whether err is an S3 not-found condition.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
