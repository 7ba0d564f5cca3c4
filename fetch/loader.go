package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/eak1mov/go-pyramid/format"
	"github.com/eak1mov/go-pyramid/tarzoom"
	"github.com/eak1mov/go-pyramid/tile"
)

const DefaultUserAgent = "go-pyramid/1.0"

var ErrStatus = errors.New("pyramid: unexpected http status")

// Loader loads the data of one channel of a tile.
type Loader interface {
	Load(ctx context.Context, channel int, t *tile.Tile) ([]byte, error)
}

// HTTPLoader downloads tiles located by a format.Adapter. Packed formats
// are fetched with ranged requests.
type HTTPLoader struct {
	adapter   format.Adapter
	client    *http.Client
	userAgent string
}

type loaderConfig struct {
	Client    *http.Client
	UserAgent string
}

type LoaderOption func(*loaderConfig)

func WithClient(client *http.Client) LoaderOption {
	return func(c *loaderConfig) { c.Client = client }
}

func WithUserAgent(userAgent string) LoaderOption {
	return func(c *loaderConfig) { c.UserAgent = userAgent }
}

func NewHTTPLoader(adapter format.Adapter, opts ...LoaderOption) *HTTPLoader {
	config := loaderConfig{
		Client:    http.DefaultClient,
		UserAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &HTTPLoader{adapter: adapter, client: config.Client, userAgent: config.UserAgent}
}

func (l *HTTPLoader) Load(ctx context.Context, channel int, t *tile.Tile) ([]byte, error) {
	resource, err := l.adapter.Locate(channel, t)
	if err != nil {
		return nil, err
	}
	if resource.Range != nil {
		t.SetLocation(*resource.Range)
		if resource.Range.Length == 0 {
			return make([]byte, 0), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.userAgent)

	want := http.StatusOK
	if r := resource.Range; r != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.Offset, r.End()-1))
		want = http.StatusPartialContent
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return nil, fmt.Errorf("%w: %s for %v", ErrStatus, resp.Status, resource.URL)
	}
	return io.ReadAll(resp.Body)
}

// FileLoader reads tiles located by a format.Adapter from the local file
// system. Resource URLs are file paths.
type FileLoader struct {
	adapter format.Adapter
}

func NewFileLoader(adapter format.Adapter) *FileLoader {
	return &FileLoader{adapter: adapter}
}

func (l *FileLoader) Load(ctx context.Context, channel int, t *tile.Tile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resource, err := l.adapter.Locate(channel, t)
	if err != nil {
		return nil, err
	}
	if resource.Range == nil {
		return os.ReadFile(resource.URL)
	}

	t.SetLocation(*resource.Range)
	file, err := os.Open(resource.URL)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return tarzoom.ReadTile(file, *resource.Range)
}
