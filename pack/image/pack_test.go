package image_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/lode/domain/resource"
	"github.com/felixgeelhaar/lode/pack/image"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newTestPack(t *testing.T, source image.Source, critical ...string) *image.Pack {
	t.Helper()

	cfg := image.DefaultPackConfig()
	cfg.Source = source
	cfg.Critical = critical

	p, err := image.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Dispose(context.Background()) })
	return p
}

func TestNew_RequiresSource(t *testing.T) {
	t.Parallel()

	_, err := image.New(image.DefaultPackConfig())
	if !errors.Is(err, image.ErrSourceNotConfigured) {
		t.Errorf("New() error = %v, want ErrSourceNotConfigured", err)
	}
}

func TestPack_Load(t *testing.T) {
	t.Parallel()

	source := image.NewMockSource(map[string][]byte{
		"logos/main.png": pngHeader,
	})
	p := newTestPack(t, source)
	ctx := context.Background()

	if err := p.Register("logo", "logos/main.png"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	asset, err := p.Load(ctx, "logo")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if asset.Name != "logo" || asset.Path != "logos/main.png" {
		t.Errorf("asset identity = %s/%s", asset.Name, asset.Path)
	}
	if asset.ContentType != "image/png" {
		t.Errorf("ContentType = %s, want image/png", asset.ContentType)
	}
	if asset.SizeBytes != int64(len(pngHeader)) {
		t.Errorf("SizeBytes = %d, want %d", asset.SizeBytes, len(pngHeader))
	}

	// Second load comes from cache.
	if _, err := p.Load(ctx, "logo"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := source.Fetches(); n != 1 {
		t.Errorf("source fetched %d times, want 1", n)
	}
}

func TestPack_LoadUnregistered(t *testing.T) {
	t.Parallel()

	p := newTestPack(t, image.NewMockSource(nil))
	_, err := p.Load(context.Background(), "ghost")
	if !errors.Is(err, resource.ErrNotRegistered) {
		t.Errorf("Load() error = %v, want ErrNotRegistered", err)
	}
}

func TestPack_FetchFailure(t *testing.T) {
	t.Parallel()

	source := image.NewMockSource(nil)
	source.Err = errors.New("cdn down")
	p := newTestPack(t, source)
	p.Register("logo", "logo.png")

	_, err := p.Load(context.Background(), "logo")
	var loadErr *resource.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() error = %v, want *LoadError", err)
	}
}

func TestPack_Invalidate(t *testing.T) {
	t.Parallel()

	source := image.NewMockSource(map[string][]byte{"a.png": pngHeader})
	p := newTestPack(t, source)
	ctx := context.Background()
	p.Register("a", "a.png")

	p.Load(ctx, "a")
	if err := p.Invalidate(ctx, "a"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	p.Load(ctx, "a")

	if n := source.Fetches(); n != 2 {
		t.Errorf("source fetched %d times, want 2 after invalidation", n)
	}
}

func TestPack_Warm(t *testing.T) {
	t.Parallel()

	source := image.NewMockSource(map[string][]byte{
		"hero.png":  pngHeader,
		"thumb.png": pngHeader,
	})
	p := newTestPack(t, source, "hero")
	p.RegisterAll(map[string]string{
		"hero":      "hero.png",
		"thumbnail": "thumb.png",
	})

	p.Warm(context.Background(), "hero", "thumbnail")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.IsLoaded("hero") && p.IsLoaded("thumbnail") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("warm did not finish: hero=%t thumbnail=%t", p.IsLoaded("hero"), p.IsLoaded("thumbnail"))
}

func TestFSSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "icons"), 0o755)
	os.WriteFile(filepath.Join(dir, "icons", "x.png"), pngHeader, 0o644)

	source := image.NewFSSource(dir)
	ctx := context.Background()

	data, err := source.Fetch(ctx, "icons/x.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(data) != len(pngHeader) {
		t.Errorf("Fetch() returned %d bytes, want %d", len(data), len(pngHeader))
	}

	// Escaping paths are cleaned back under the root or rejected.
	if _, err := source.Fetch(ctx, "../../etc/passwd"); err == nil {
		t.Error("Fetch() should fail for paths outside the root")
	}
}
