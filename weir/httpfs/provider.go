// Package httpfs provides a weir provider over HTTP(S).
//
// Metadata comes from HEAD requests (Content-Length + Last-Modified) with a
// ranged-GET probe as fallback for servers that reject HEAD. Content reads
// use Range requests; when a server ignores Range and replies 200 with the
// whole representation, the provider discards the prefix and serves the
// requested window, decoding gzip-encoded fallback bodies transparently.
package httpfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/weir/weir"
)

// ErrUnexpectedStatus wraps HTTP statuses the provider cannot interpret.
var ErrUnexpectedStatus = errors.New("httpfs: unexpected status")

// Config holds configuration for the HTTP provider.
type Config struct {
	// BaseURL is the URL prefix file identifiers are resolved against.
	// Required.
	BaseURL string

	// Client is the HTTP client to use. If nil, a default client with a
	// 60 second timeout is used.
	Client *http.Client
}

// Provider implements weir.Provider over an HTTP server.
type Provider struct {
	client *http.Client
	base   *url.URL
}

var _ weir.Provider = (*Provider)(nil)

// New creates an HTTP provider for the given base URL.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("httpfs: base URL must not be empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httpfs: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpfs: unsupported scheme %q", base.Scheme)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &Provider{client: client, base: base}, nil
}

// Metadata implements weir.MetadataPort.
func (p *Provider) Metadata(ctx context.Context, id weir.FileID) (weir.Metadata, error) {
	target, err := p.resolve(id)
	if err != nil {
		return weir.Metadata{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return weir.Metadata{}, fmt.Errorf("httpfs: head request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return weir.Metadata{}, fmt.Errorf("httpfs: head: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if resp.ContentLength < 0 {
			// Chunked HEAD response; fall back to a range probe.
			return p.probe(ctx, target)
		}
		return weir.Metadata{
			Size:    resp.ContentLength,
			ModTime: lastModified(resp.Header),
		}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return weir.Metadata{}, weir.ErrNotFound
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		return p.probe(ctx, target)
	default:
		return weir.Metadata{}, fmt.Errorf("%w: HEAD %s", ErrUnexpectedStatus, resp.Status)
	}
}

// probe issues a one-byte range GET and derives the size from Content-Range.
func (p *Provider) probe(ctx context.Context, target string) (weir.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return weir.Metadata{}, fmt.Errorf("httpfs: probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := p.client.Do(req)
	if err != nil {
		return weir.Metadata{}, fmt.Errorf("httpfs: probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		size, err := totalFromContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return weir.Metadata{}, err
		}
		return weir.Metadata{Size: size, ModTime: lastModified(resp.Header)}, nil
	case http.StatusOK:
		// Server ignored the range; the body is the whole file.
		n, err := io.Copy(io.Discard, resp.Body)
		if err != nil {
			return weir.Metadata{}, fmt.Errorf("httpfs: probe body: %w", err)
		}
		return weir.Metadata{Size: n, ModTime: lastModified(resp.Header)}, nil
	case http.StatusNotFound, http.StatusGone:
		return weir.Metadata{}, weir.ErrNotFound
	default:
		return weir.Metadata{}, fmt.Errorf("%w: GET %s", ErrUnexpectedStatus, resp.Status)
	}
}

// ReadAt implements weir.ContentPort.
func (p *Provider) ReadAt(ctx context.Context, id weir.FileID, buf []byte, off int64) (int, error) {
	target, err := p.resolve(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, weir.ErrInvalidPath
	}
	if len(buf) == 0 {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("httpfs: get request: %w", err)
	}
	end := off + int64(len(buf)) - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
	// Setting Accept-Encoding explicitly disables the transport's
	// automatic decompression; fallback bodies are decoded below.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("httpfs: get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if resp.Header.Get("Content-Encoding") != "" {
			return 0, fmt.Errorf("httpfs: ranged response with content encoding %q", resp.Header.Get("Content-Encoding"))
		}
		return readFullShort(resp.Body, buf)
	case http.StatusOK:
		// Server ignored the range: skip the prefix and serve the window.
		body := io.Reader(resp.Body)
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(resp.Body)
			if err != nil {
				return 0, fmt.Errorf("httpfs: gzip body: %w", err)
			}
			defer func() { _ = gz.Close() }()
			body = gz
		}
		if _, err := io.CopyN(io.Discard, body, off); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, fmt.Errorf("httpfs: discarding prefix: %w", err)
		}
		return readFullShort(body, buf)
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, nil
	case http.StatusNotFound, http.StatusGone:
		return 0, weir.ErrNotFound
	default:
		return 0, fmt.Errorf("%w: GET %s", ErrUnexpectedStatus, resp.Status)
	}
}

// resolve joins a file identifier onto the base URL, rejecting escapes.
func (p *Provider) resolve(id weir.FileID) (string, error) {
	name := string(id)
	if name == "" || strings.HasPrefix(name, "/") {
		return "", weir.ErrInvalidPath
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", weir.ErrInvalidPath
		}
	}

	ref, err := url.Parse(name)
	if err != nil {
		return "", weir.ErrInvalidPath
	}

	joined := *p.base
	joined.Path = strings.TrimSuffix(joined.Path, "/") + "/" + ref.Path
	joined.RawQuery = ref.RawQuery
	return joined.String(), nil
}

// readFullShort fills buf from r, treating a short count at EOF as success.
func readFullShort(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("httpfs: reading body: %w", err)
	}
	return n, nil
}

// lastModified parses the Last-Modified header; a missing or malformed
// header yields the zero time.
func lastModified(h http.Header) time.Time {
	v := h.Get("Last-Modified")
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// totalFromContentRange extracts the total size from a Content-Range header
// of the form "bytes 0-0/1234".
func totalFromContentRange(v string) (int64, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "" || total == "*" {
		return 0, fmt.Errorf("httpfs: unparseable Content-Range %q", v)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("httpfs: unparseable Content-Range %q", v)
	}
	return size, nil
}
