// Package template provides a cached, lazily loading template pack.
// Layouts and partials register as dependencies of the pages that use
// them, so loading a page pulls in everything it needs exactly once.
package template

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/felixgeelhaar/lode/application"
	"github.com/felixgeelhaar/lode/domain/resource"
)

// ErrSourceNotConfigured is returned when the pack has no source.
var ErrSourceNotConfigured = errors.New("template: source not configured")

// Source supplies raw template text by path.
type Source interface {
	// Fetch returns the template text stored at path.
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// PackConfig configures the template pack.
type PackConfig struct {
	// Source supplies template text. Required.
	Source Source

	// Funcs is merged into every parsed template.
	Funcs template.FuncMap

	// CacheTTL is how long parsed templates stay cached. Zero keeps
	// the cache default.
	CacheTTL time.Duration
}

// DefaultPackConfig returns default pack configuration.
func DefaultPackConfig() PackConfig {
	return PackConfig{
		CacheTTL: time.Hour,
	}
}

// Pack parses and caches templates.
type Pack struct {
	loader *application.Loader[*template.Template]
	cfg    PackConfig
}

// New creates a template pack with the given configuration.
func New(cfg PackConfig, opts ...application.Option[*template.Template]) (*Pack, error) {
	if cfg.Source == nil {
		return nil, ErrSourceNotConfigured
	}

	base := []application.Option[*template.Template]{
		application.WithCacheName[*template.Template]("templates"),
		application.WithResultTTL[*template.Template](cfg.CacheTTL),
	}
	loader, err := application.NewLoader[*template.Template](append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Pack{loader: loader, cfg: cfg}, nil
}

// LayoutID returns the resource ID for a layout.
func LayoutID(name string) string { return "layout:" + name }

// PartialID returns the resource ID for a partial.
func PartialID(name string) string { return "partial:" + name }

// PageID returns the resource ID for a page.
func PageID(name string) string { return "page:" + name }

// RegisterLayout declares a layout template. Layouts warm at high
// priority since pages cannot render without them.
func (p *Pack) RegisterLayout(name, path string) error {
	return p.loader.Register(resource.Resource[*template.Template]{
		ID:       LayoutID(name),
		Priority: resource.PriorityHigh,
		Load:     p.parseFactory(name, path),
	})
}

// RegisterPartial declares a shared partial template.
func (p *Pack) RegisterPartial(name, path string) error {
	return p.loader.Register(resource.Resource[*template.Template]{
		ID:       PartialID(name),
		Priority: resource.PriorityMedium,
		Load:     p.parseFactory(name, path),
	})
}

// RegisterPage declares a page template rendered inside layout, with
// the named partials available. The layout and partials load before
// the page parses.
func (p *Pack) RegisterPage(name, path, layout string, partials ...string) error {
	deps := make([]string, 0, len(partials)+1)
	if layout != "" {
		deps = append(deps, LayoutID(layout))
	}
	for _, partial := range partials {
		deps = append(deps, PartialID(partial))
	}

	return p.loader.Register(resource.Resource[*template.Template]{
		ID:        PageID(name),
		Priority:  resource.PriorityLow,
		DependsOn: deps,
		Load:      p.pageFactory(name, path, layout, partials),
	})
}

// Page returns the parsed page template, loading it and its layout and
// partials on first use.
func (p *Pack) Page(ctx context.Context, name string) (*template.Template, error) {
	return p.loader.Load(ctx, PageID(name))
}

// Render executes the named page with data.
func (p *Pack) Render(ctx context.Context, w io.Writer, page string, data any) error {
	tmpl, err := p.Page(ctx, page)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}

// Warm preloads the named pages and everything they depend on.
func (p *Pack) Warm(ctx context.Context, pages ...string) {
	ids := make([]string, len(pages))
	for i, page := range pages {
		ids[i] = PageID(page)
	}
	p.loader.Preload(ctx, ids)
}

// InvalidatePage drops a cached page so the next load reparses it.
// The layout and partials stay cached.
func (p *Pack) InvalidatePage(ctx context.Context, name string) error {
	return p.loader.Invalidate(ctx, PageID(name))
}

// InvalidatePartial drops a cached partial. Pages that embedded it
// must be invalidated too to pick up the change.
func (p *Pack) InvalidatePartial(ctx context.Context, name string) error {
	return p.loader.Invalidate(ctx, PartialID(name))
}

// IsLoaded reports whether the named page is parsed and cached.
func (p *Pack) IsLoaded(page string) bool {
	return p.loader.IsLoaded(PageID(page))
}

// Dispose releases the pack's loader and cache.
func (p *Pack) Dispose(ctx context.Context) error {
	return p.loader.Dispose(ctx)
}

// parseFactory parses a standalone template (layout or partial).
func (p *Pack) parseFactory(name, path string) resource.Factory[*template.Template] {
	return func(ctx context.Context) (*template.Template, error) {
		text, err := p.cfg.Source.Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetch template %q: %w", path, err)
		}
		tmpl, err := template.New(name).Funcs(p.funcs()).Parse(string(text))
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", path, err)
		}
		return tmpl, nil
	}
}

// pageFactory parses a page into a clone of its layout, with partial
// trees attached. Dependencies are cached by the time this runs, so
// the nested loads are cheap lookups.
func (p *Pack) pageFactory(name, path, layout string, partials []string) resource.Factory[*template.Template] {
	return func(ctx context.Context) (*template.Template, error) {
		var base *template.Template
		if layout != "" {
			layoutTmpl, err := p.loader.Load(ctx, LayoutID(layout))
			if err != nil {
				return nil, err
			}
			base, err = layoutTmpl.Clone()
			if err != nil {
				return nil, fmt.Errorf("clone layout %q: %w", layout, err)
			}
		} else {
			base = template.New(name).Funcs(p.funcs())
		}

		for _, partial := range partials {
			partialTmpl, err := p.loader.Load(ctx, PartialID(partial))
			if err != nil {
				return nil, err
			}
			for _, t := range partialTmpl.Templates() {
				if _, err := base.AddParseTree(t.Name(), t.Tree); err != nil {
					return nil, fmt.Errorf("attach partial %q: %w", partial, err)
				}
			}
		}

		text, err := p.cfg.Source.Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetch template %q: %w", path, err)
		}
		parsed, err := base.Parse(string(text))
		if err != nil {
			return nil, fmt.Errorf("parse page %q: %w", path, err)
		}
		return parsed, nil
	}
}

func (p *Pack) funcs() template.FuncMap {
	if p.cfg.Funcs == nil {
		return template.FuncMap{}
	}
	return p.cfg.Funcs
}
