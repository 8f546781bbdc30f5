// Package image provides a cached, lazily loading image asset pack.
// Assets register once and load on first use; critical assets can be
// warmed ahead of time.
package image

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/lode/application"
	"github.com/felixgeelhaar/lode/domain/resource"
)

// ErrSourceNotConfigured is returned when the pack has no source.
var ErrSourceNotConfigured = errors.New("image: source not configured")

// Asset is one loaded image.
type Asset struct {
	// Name is the registered asset name.
	Name string
	// Path is the source path the asset was fetched from.
	Path string
	// ContentType is the detected MIME type.
	ContentType string
	// Data is the raw image bytes.
	Data []byte
	// SizeBytes is len(Data).
	SizeBytes int64
}

// PackConfig configures the image pack.
type PackConfig struct {
	// Source supplies image bytes. Required.
	Source Source

	// Critical names assets that warm at high priority.
	Critical []string

	// CacheTTL is how long loaded assets stay cached. Zero keeps the
	// cache default.
	CacheTTL time.Duration
}

// DefaultPackConfig returns default pack configuration.
func DefaultPackConfig() PackConfig {
	return PackConfig{
		CacheTTL: 30 * time.Minute,
	}
}

// Pack loads and caches image assets.
type Pack struct {
	loader *application.Loader[Asset]
	cfg    PackConfig
}

// New creates an image pack with the given configuration.
func New(cfg PackConfig, opts ...application.Option[Asset]) (*Pack, error) {
	if cfg.Source == nil {
		return nil, ErrSourceNotConfigured
	}

	base := []application.Option[Asset]{
		application.WithCacheName[Asset]("images"),
		application.WithResultTTL[Asset](cfg.CacheTTL),
	}
	loader, err := application.NewLoader[Asset](append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Pack{loader: loader, cfg: cfg}, nil
}

// Register declares an asset under name, fetched from path on first
// load. Critical assets get high priority; thumbnails get low.
func (p *Pack) Register(name, path string) error {
	return p.loader.Register(resource.Resource[Asset]{
		ID:       name,
		Priority: p.priorityFor(name, path),
		Load:     p.factory(name, path),
		Metadata: map[string]any{"path": path},
	})
}

// RegisterAll declares a set of assets, keyed by name.
func (p *Pack) RegisterAll(assets map[string]string) error {
	for name, path := range assets {
		if err := p.Register(name, path); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the named asset, fetching it on first use.
func (p *Pack) Load(ctx context.Context, name string) (Asset, error) {
	return p.loader.Load(ctx, name)
}

// Warm preloads the named assets: critical ones immediately, the rest
// queued by priority.
func (p *Pack) Warm(ctx context.Context, names ...string) {
	p.loader.Preload(ctx, names)
}

// Invalidate drops the cached asset so the next load refetches it.
func (p *Pack) Invalidate(ctx context.Context, name string) error {
	return p.loader.Invalidate(ctx, name)
}

// IsLoaded reports whether the asset is cached and ready.
func (p *Pack) IsLoaded(name string) bool {
	return p.loader.IsLoaded(name)
}

// Dispose releases the pack's loader and cache.
func (p *Pack) Dispose(ctx context.Context) error {
	return p.loader.Dispose(ctx)
}

// factory builds the load function for one asset.
func (p *Pack) factory(name, path string) resource.Factory[Asset] {
	return func(ctx context.Context) (Asset, error) {
		data, err := p.cfg.Source.Fetch(ctx, path)
		if err != nil {
			return Asset{}, fmt.Errorf("fetch image %q: %w", path, err)
		}
		return Asset{
			Name:        name,
			Path:        path,
			ContentType: detectContentType(path, data),
			Data:        data,
			SizeBytes:   int64(len(data)),
		}, nil
	}
}

// priorityFor decides warm ordering: configured critical assets first,
// thumbnails last, everything else in between.
func (p *Pack) priorityFor(name, path string) resource.Priority {
	if slices.Contains(p.cfg.Critical, name) {
		return resource.PriorityHigh
	}
	lower := strings.ToLower(name + " " + path)
	if strings.Contains(lower, "thumb") {
		return resource.PriorityLow
	}
	return resource.PriorityMedium
}

// detectContentType prefers the file extension and falls back to
// content sniffing.
func detectContentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
