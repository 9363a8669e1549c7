// Package s3 provides an S3-compatible container source for riffle.
//
// The adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2, and other
// S3-compatible object stores. Opening a container issues one HeadObject
// to learn the object's size; record reads become HTTP ranged GetObject
// calls, so an object is never downloaded whole.
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency (since Dec 2020).
// Other S3-compatible backends (MinIO, LocalStack, R2) may have different
// consistency guarantees — consult their documentation. Containers are
// assumed immutable once indexed; riffle never re-validates offsets
// against an object that changed underneath it.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/riffle/riffle"
)

// ErrInvalidKey indicates a key that is empty or would escape the
// configured prefix.
var ErrInvalidKey = errors.New("s3: invalid key")

// API defines the subset of the S3 client interface used by the source.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 source.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// If set, all keys are prefixed with this value (with a trailing slash
	// added if missing).
	Prefix string
}

// Source opens containers stored in an S3 bucket. It implements
// riffle.Source.
type Source struct {
	client API
	bucket string
	prefix string
}

// New creates an S3 source with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and
// endpoint. Use github.com/aws/aws-sdk-go-v2/config to load configuration.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	source, err := riffles3.New(client, riffles3.Config{Bucket: "my-bucket"})
func New(client API, cfg Config) (*Source, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Open returns a container handle for the object at key.
// Returns riffle.ErrNotFound if the object does not exist.
func (s *Source) Open(ctx context.Context, key string) (riffle.Container, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, riffle.ErrNotFound)
		}
		return nil, fmt.Errorf("s3: head object: %w", err)
	}

	return &object{
		client:  s.client,
		bucket:  s.bucket,
		key:     fullKey,
		size:    aws.ToInt64(head.ContentLength),
		baseCtx: ctx,
	}, nil
}

// validateKey validates and returns the full key for object operations.
func (s *Source) validateKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}

	return s.prefix + cleaned, nil
}

// -----------------------------------------------------------------------------
// Object handle
// -----------------------------------------------------------------------------

// object is a random-access handle to one S3 object. Reads at different
// offsets are independent ranged GETs and safe to issue concurrently.
type object struct {
	client  API
	bucket  string
	key     string
	size    int64
	baseCtx context.Context
}

// ReadAt implements io.ReaderAt via an HTTP ranged GetObject.
func (o *object) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("s3: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}

	// S3 Range header format: "bytes=start-end" (inclusive).
	end := off + int64(len(p)) - 1
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	out, err := o.client.GetObject(o.baseCtx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		// InvalidRange means the offset starts beyond EOF.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err = io.ReadFull(out.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Partial read: the requested range extends beyond EOF.
		err = io.EOF
	}
	return n, err
}

func (o *object) Close() error {
	return nil
}

func (o *object) Size() int64 {
	return o.size
}

// isNotFound reports whether err is any of the S3 "no such object" shapes.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API backed by an in-memory object map.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Call counters for test assertions.
	GetObjectCalls  int
	HeadObjectCalls int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string][]byte),
	}
}

// PutObjectBytes seeds the mock with an object.
func (m *MockS3Client) PutObjectBytes(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// GetObject implements API.GetObject for testing, including Range handling.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	data, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		_, _ = fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	data, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// smithyAPIError is a minimal smithy.APIError implementation for the mock.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *smithyAPIError) ErrorCode() string { return e.code }

func (e *smithyAPIError) ErrorMessage() string { return e.message }

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }
