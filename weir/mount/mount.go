// Package mount resolves mount names to weir providers.
//
// It is the mounting collaborator the stream reader treats as external: a
// registry maps mount names to Provider instances, and a JSON mount
// configuration builds registries for the built-in provider types.
package mount

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/weir/weir"
	"github.com/pithecene-io/weir/weir/httpfs"
	s3provider "github.com/pithecene-io/weir/weir/s3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error sentinel values for registry conditions.
var (
	// ErrMountExists indicates a mount name is already taken.
	ErrMountExists = errMountExists{}

	// ErrMountNotFound indicates no provider is mounted under the name.
	ErrMountNotFound = errMountNotFound{}
)

type errMountExists struct{}

func (errMountExists) Error() string { return "mount exists" }

type errMountNotFound struct{}

func (errMountNotFound) Error() string { return "mount not found" }

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps mount names to providers.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	mounts map[string]weir.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mounts: make(map[string]weir.Provider)}
}

// Mount registers a provider under a name. Names are flat: no slashes.
func (r *Registry) Mount(name string, p weir.Provider) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("mount: invalid mount name %q", name)
	}
	if p == nil {
		return fmt.Errorf("mount: provider for %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mounts[name]; ok {
		return fmt.Errorf("mount %q: %w", name, ErrMountExists)
	}
	r.mounts[name] = p
	return nil
}

// Unmount removes a mount if present. Readers already constructed against
// the provider are unaffected.
func (r *Registry) Unmount(name string) {
	r.mu.Lock()
	delete(r.mounts, name)
	r.mu.Unlock()
}

// Resolve returns the provider mounted under name.
func (r *Registry) Resolve(name string) (weir.Provider, error) {
	r.mu.RLock()
	p, ok := r.mounts[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mount %q: %w", name, ErrMountNotFound)
	}
	return p, nil
}

// Open constructs a stream reader for a "mountName/file/path" reference.
func (r *Registry) Open(ref string, offset int64, expectedModTime time.Time, opts ...weir.ReaderOption) (*weir.StreamReader, error) {
	name, rest, ok := strings.Cut(ref, "/")
	if !ok || name == "" || rest == "" {
		return nil, fmt.Errorf("mount: invalid file reference %q", ref)
	}

	p, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return weir.NewStreamReader(p, weir.FileID(rest), offset, expectedModTime, opts...), nil
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Spec describes one mount in a configuration document.
type Spec struct {
	// Name is the mount name. Required, unique, no slashes.
	Name string `json:"name"`

	// Type selects the provider: "memory", "fs", "http", or "s3".
	Type string `json:"type"`

	// Root is the directory for "fs" mounts.
	Root string `json:"root,omitempty"`

	// BaseURL is the URL prefix for "http" mounts.
	BaseURL string `json:"base_url,omitempty"`

	// Bucket, Prefix, Region, Endpoint and PathStyle configure "s3"
	// mounts. Endpoint and PathStyle are for S3-compatible services.
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"path_style,omitempty"`
}

// Config is a mount configuration document.
type Config struct {
	Mounts []Spec `json:"mounts"`
}

// LoadConfig reads a JSON mount configuration. A .env file in the working
// directory is overlaid onto the environment first, and ${VAR} references
// in the document are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	// Missing .env files are fine; explicit environment wins.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mount: read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("mount: parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Mounts))
	for i, spec := range cfg.Mounts {
		if spec.Name == "" {
			return fmt.Errorf("mount: mounts[%d]: name is required", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("mount: duplicate mount %q", spec.Name)
		}
		seen[spec.Name] = true

		switch spec.Type {
		case "memory":
		case "fs":
			if spec.Root == "" {
				return fmt.Errorf("mount %q: root is required for fs mounts", spec.Name)
			}
		case "http":
			if spec.BaseURL == "" {
				return fmt.Errorf("mount %q: base_url is required for http mounts", spec.Name)
			}
		case "s3":
			if spec.Bucket == "" {
				return fmt.Errorf("mount %q: bucket is required for s3 mounts", spec.Name)
			}
		default:
			return fmt.Errorf("mount %q: unknown type %q", spec.Name, spec.Type)
		}
	}
	return nil
}

// Build constructs a registry from a configuration.
func Build(ctx context.Context, cfg *Config) (*Registry, error) {
	reg := NewRegistry()

	for _, spec := range cfg.Mounts {
		p, err := buildProvider(ctx, spec)
		if err != nil {
			return nil, err
		}
		if err := reg.Mount(spec.Name, p); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func buildProvider(ctx context.Context, spec Spec) (weir.Provider, error) {
	switch spec.Type {
	case "memory":
		return weir.NewMemory(), nil
	case "fs":
		return weir.NewFS(spec.Root)
	case "http":
		return httpfs.New(httpfs.Config{BaseURL: spec.BaseURL})
	case "s3":
		client, err := s3provider.NewClient(ctx, s3provider.ClientConfig{
			Region:       spec.Region,
			Endpoint:     spec.Endpoint,
			UsePathStyle: spec.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("mount %q: %w", spec.Name, err)
		}
		return s3provider.New(client, s3provider.Config{
			Bucket: spec.Bucket,
			Prefix: spec.Prefix,
		})
	default:
		return nil, fmt.Errorf("mount %q: unknown type %q", spec.Name, spec.Type)
	}
}
