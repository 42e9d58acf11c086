package assets

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Source fetches named asset buffers. Names are slash-separated paths
// relative to the model root, as written in the settings file.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirSource reads assets from a local directory.
type DirSource struct {
	Root string
}

func (d DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return nil, fmt.Errorf("fetch %q: %w", name, fs.ErrInvalid)
	}
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(clean)))
}

// MemSource serves assets from memory.
type MemSource map[string][]byte

func (m MemSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("fetch %q: %w", name, fs.ErrNotExist)
	}
	return data, nil
}

// HTTPSource fetches assets relative to a base URL. Names that carry a
// scheme or host, or resolve outside the base path, are rejected.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPSource(base string, timeout time.Duration) (*HTTPSource, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("asset base url: %w", err)
	}
	return &HTTPSource{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (h *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("asset url %q: %w", name, err)
	}
	// Names stay under the base: no scheme, no host, no climbing out.
	if ref.Scheme != "" || ref.Host != "" || ref.Opaque != "" || ref.User != nil {
		return nil, fmt.Errorf("fetch %q: not a relative asset path: %w", name, fs.ErrInvalid)
	}
	resolved := h.base.ResolveReference(ref)
	if !strings.HasPrefix(resolved.Path, h.base.Path) {
		return nil, fmt.Errorf("fetch %q: escapes asset base: %w", name, fs.ErrInvalid)
	}
	target := resolved.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", target, fs.ErrNotExist)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}
