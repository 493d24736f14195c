package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3api "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mockObject is a fixture object held by MockS3Client.
type mockObject struct {
	data         []byte
	lastModified time.Time
}

// MockS3Client is an in-memory implementation of the API interface for unit
// tests. It honors Range headers the way S3 does, including InvalidRange
// for offsets at or beyond the object size.
type MockS3Client struct {
	mu      sync.Mutex
	objects map[string]mockObject

	// Call counters for assertions.
	HeadCalls int
	GetCalls  int

	// Error injection: when set, the next matching call fails with it.
	HeadErr error
	GetErr  error
}

// NewMockS3Client creates an empty mock client.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{objects: make(map[string]mockObject)}
}

// PutFixture stores an object for subsequent Head/Get calls.
func (m *MockS3Client) PutFixture(key string, data []byte, lastModified time.Time) {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.objects[key] = mockObject{data: cp, lastModified: lastModified}
	m.mu.Unlock()
}

func (m *MockS3Client) HeadObject(_ context.Context, params *s3api.HeadObjectInput, _ ...func(*s3api.Options)) (*s3api.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeadCalls++

	if m.HeadErr != nil {
		err := m.HeadErr
		m.HeadErr = nil
		return nil, err
	}

	obj, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		// HeadObject reports missing keys as a bare 404, not NoSuchKey.
		return nil, &smithyAPIError{code: "NotFound", message: "Not Found"}
	}

	return &s3api.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

func (m *MockS3Client) GetObject(_ context.Context, params *s3api.GetObjectInput, _ ...func(*s3api.Options)) (*s3api.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++

	if m.GetErr != nil {
		err := m.GetErr
		m.GetErr = nil
		return nil, err
	}

	obj, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	data := obj.data
	if rng := aws.ToString(params.Range); rng != "" {
		start, end, err := parseRange(rng, int64(len(data)))
		if err != nil {
			return nil, err
		}
		data = data[start : end+1]
	}

	return &s3api.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

// parseRange parses an S3 "bytes=start-end" header against an object of the
// given size, clamping end and rejecting out-of-bounds starts.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, &smithyAPIError{code: "InvalidArgument", message: "malformed range"}
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, &smithyAPIError{code: "InvalidArgument", message: "malformed range"}
	}
	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, &smithyAPIError{code: "InvalidArgument", message: "malformed range"}
	}
	end, err = strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, &smithyAPIError{code: "InvalidArgument", message: "malformed range"}
	}
	if start >= size {
		return 0, 0, &smithyAPIError{code: "InvalidRange", message: "requested range not satisfiable"}
	}
	if end > size-1 {
		end = size - 1
	}
	return start, end, nil
}

// smithyAPIError implements smithy.APIError for mock error injection.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.code, e.message)
}

func (e *smithyAPIError) ErrorCode() string { return e.code }

func (e *smithyAPIError) ErrorMessage() string { return e.message }

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var _ smithy.APIError = (*smithyAPIError)(nil)
