package template_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/lode/domain/resource"
	"github.com/felixgeelhaar/lode/pack/template"
)

// mockSource serves template text from a map.
type mockSource struct {
	mu      sync.Mutex
	files   map[string]string
	fetches int
}

func (s *mockSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	text, ok := s.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(text), nil
}

func (s *mockSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func newTestPack(t *testing.T, files map[string]string) (*template.Pack, *mockSource) {
	t.Helper()

	source := &mockSource{files: files}
	cfg := template.DefaultPackConfig()
	cfg.Source = source
	cfg.Funcs = map[string]any{
		"upper": strings.ToUpper,
	}

	p, err := template.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Dispose(context.Background()) })
	return p, source
}

func TestNew_RequiresSource(t *testing.T) {
	t.Parallel()

	_, err := template.New(template.DefaultPackConfig())
	if !errors.Is(err, template.ErrSourceNotConfigured) {
		t.Errorf("New() error = %v, want ErrSourceNotConfigured", err)
	}
}

func TestPack_RenderStandalonePage(t *testing.T) {
	t.Parallel()

	p, _ := newTestPack(t, map[string]string{
		"hello.tmpl": `Hello, {{upper .Name}}!`,
	})
	if err := p.RegisterPage("hello", "hello.tmpl", ""); err != nil {
		t.Fatalf("RegisterPage() error = %v", err)
	}

	var out strings.Builder
	err := p.Render(context.Background(), &out, "hello", map[string]string{"Name": "world"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out.String() != "Hello, WORLD!" {
		t.Errorf("Render() = %q, want %q", out.String(), "Hello, WORLD!")
	}
}

func TestPack_RenderWithLayoutAndPartials(t *testing.T) {
	t.Parallel()

	p, source := newTestPack(t, map[string]string{
		"layout.tmpl": `<main>{{template "content" .}}{{template "footer" .}}</main>`,
		"footer.tmpl": `{{define "footer"}}<footer>end</footer>{{end}}`,
		"about.tmpl":  `{{define "content"}}<h1>{{.Title}}</h1>{{end}}`,
	})
	p.RegisterLayout("base", "layout.tmpl")
	p.RegisterPartial("footer", "footer.tmpl")
	p.RegisterPage("about", "about.tmpl", "base", "footer")

	var out strings.Builder
	err := p.Render(context.Background(), &out, "about", map[string]string{"Title": "About"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "<main><h1>About</h1><footer>end</footer></main>"
	if out.String() != want {
		t.Errorf("Render() = %q, want %q", out.String(), want)
	}

	// Layout, partial, and page each fetched exactly once.
	if n := source.Fetches(); n != 3 {
		t.Errorf("source fetched %d times, want 3", n)
	}
}

func TestPack_SharedLayoutFetchedOnce(t *testing.T) {
	t.Parallel()

	p, source := newTestPack(t, map[string]string{
		"layout.tmpl": `[{{template "content" .}}]`,
		"a.tmpl":      `{{define "content"}}A{{end}}`,
		"b.tmpl":      `{{define "content"}}B{{end}}`,
	})
	p.RegisterLayout("base", "layout.tmpl")
	p.RegisterPage("a", "a.tmpl", "base")
	p.RegisterPage("b", "b.tmpl", "base")

	ctx := context.Background()
	var outA, outB strings.Builder
	if err := p.Render(ctx, &outA, "a", nil); err != nil {
		t.Fatalf("Render(a) error = %v", err)
	}
	if err := p.Render(ctx, &outB, "b", nil); err != nil {
		t.Fatalf("Render(b) error = %v", err)
	}

	if outA.String() != "[A]" || outB.String() != "[B]" {
		t.Errorf("renders = %q, %q; want [A], [B]", outA.String(), outB.String())
	}
	// layout + a + b = 3 fetches; the layout is shared.
	if n := source.Fetches(); n != 3 {
		t.Errorf("source fetched %d times, want 3", n)
	}
}

func TestPack_ParseErrorSurfaces(t *testing.T) {
	t.Parallel()

	p, _ := newTestPack(t, map[string]string{
		"broken.tmpl": `{{.Name`,
	})
	p.RegisterPage("broken", "broken.tmpl", "")

	_, err := p.Page(context.Background(), "broken")
	var loadErr *resource.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Page() error = %v, want *LoadError", err)
	}
}

func TestPack_InvalidatePage(t *testing.T) {
	t.Parallel()

	source := &mockSource{files: map[string]string{
		"page.tmpl": `v1`,
	}}
	cfg := template.DefaultPackConfig()
	cfg.Source = source
	p, err := template.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Dispose(context.Background())

	p.RegisterPage("page", "page.tmpl", "")
	ctx := context.Background()

	var out strings.Builder
	p.Render(ctx, &out, "page", nil)
	if out.String() != "v1" {
		t.Fatalf("Render() = %q, want v1", out.String())
	}

	// The source changes; the cached parse still serves.
	source.mu.Lock()
	source.files["page.tmpl"] = `v2`
	source.mu.Unlock()

	out.Reset()
	p.Render(ctx, &out, "page", nil)
	if out.String() != "v1" {
		t.Errorf("Render() = %q, want cached v1", out.String())
	}

	if err := p.InvalidatePage(ctx, "page"); err != nil {
		t.Fatalf("InvalidatePage() error = %v", err)
	}
	out.Reset()
	p.Render(ctx, &out, "page", nil)
	if out.String() != "v2" {
		t.Errorf("Render() after invalidate = %q, want v2", out.String())
	}
}

func TestPack_Warm(t *testing.T) {
	t.Parallel()

	p, _ := newTestPack(t, map[string]string{
		"layout.tmpl": `[{{template "content" .}}]`,
		"a.tmpl":      `{{define "content"}}A{{end}}`,
	})
	p.RegisterLayout("base", "layout.tmpl")
	p.RegisterPage("a", "a.tmpl", "base")

	p.Warm(context.Background(), "a")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.IsLoaded("a") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("warm did not load the page")
}
