package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/eak1mov/go-pyramid/fetch"
	"github.com/eak1mov/go-pyramid/format"
	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/schedule"
	"github.com/eak1mov/go-pyramid/tarzoom"
	"github.com/eak1mov/go-pyramid/view"
	"github.com/spf13/viper"
)

// config is the content of a view file, e.g.
//
//	source:
//	  type: tarzoom
//	  url: https://example.com/images/painting
//	view:
//	  width: 1280
//	  height: 720
//	  scale: 0.5
type config struct {
	Source   sourceConfig
	View     viewConfig
	Schedule struct {
		CacheLevels int
	}
	Fetch struct {
		Concurrency int
		UserAgent   string
		Capacity    int64
	}
}

type sourceConfig struct {
	// Type is one of tarzoom, deepzoom, iiif, pattern.
	Type     string
	URL      string
	Planes   []string
	Pattern  string
	Width    int
	Height   int
	TileSize int
	Overlap  int
	Levels   int
	Channels int
}

type viewConfig struct {
	X        float64
	Y        float64
	Width    float64
	Height   float64
	TX       float64
	TY       float64
	Scale    float64
	Rotation float64
	Border   int
	Bias     float64
}

func (c viewConfig) query() schedule.Query {
	return schedule.Query{
		Viewport:  view.Viewport{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height},
		Transform: view.Transform{TX: c.TX, TY: c.TY, Scale: c.Scale, Rotation: c.Rotation},
		Border:    c.Border,
		Bias:      c.Bias,
	}
}

// loadConfig reads a view file. Every key can be overridden from the
// environment, e.g. PYRAMID_VIEW_SCALE=0.25.
func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetDefault("source.type", "tarzoom")
	v.SetDefault("source.tilesize", 256)
	v.SetDefault("source.channels", 1)
	v.SetDefault("view.width", 1280)
	v.SetDefault("view.height", 720)
	v.SetDefault("view.scale", 1)
	v.SetDefault("view.tx", 0)
	v.SetDefault("view.ty", 0)
	v.SetDefault("view.rotation", 0)
	v.SetDefault("view.border", 1)
	v.SetDefault("view.bias", 0)
	v.SetDefault("schedule.cachelevels", schedule.DefaultCacheLevels)
	v.SetDefault("fetch.concurrency", fetch.DefaultConcurrency)
	v.SetDefault("fetch.useragent", fetch.DefaultUserAgent)
	v.SetDefault("fetch.capacity", 256<<20)

	v.SetEnvPrefix("pyramid")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about
	for _, key := range []string{
		"source.url", "source.planes", "source.pattern", "source.width", "source.height",
		"source.overlap", "source.levels", "view.x", "view.y",
	} {
		env := "PYRAMID_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.Source.URL == "" && len(c.Source.Planes) == 0 && c.Source.Pattern == "" {
		return nil, fmt.Errorf("source.url is not set")
	}
	return &c, nil
}

func remote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// open reads a descriptor from a URL or a local path.
func open(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if !remote(url) {
		return os.Open(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s for %v", fetch.ErrStatus, resp.Status, url)
	}
	return resp.Body, nil
}

func openIndex(ctx context.Context, client *http.Client, base string) (*tarzoom.Index, error) {
	r, err := open(ctx, client, base+tarzoom.IndexExt)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return tarzoom.ReadIndex(r)
}

func openAdapter(ctx context.Context, client *http.Client, source sourceConfig) (format.Adapter, error) {
	switch source.Type {
	case "tarzoom":
		if len(source.Planes) == 0 {
			index, err := openIndex(ctx, client, source.URL)
			if err != nil {
				return nil, err
			}
			return tarzoom.NewAdapter(source.URL, index)
		}
		indexes := make([]*tarzoom.Index, len(source.Planes))
		for i, plane := range source.Planes {
			index, err := openIndex(ctx, client, plane)
			if err != nil {
				return nil, err
			}
			indexes[i] = index
		}
		return tarzoom.NewPlanesAdapter(source.Planes, indexes)

	case "deepzoom":
		r, err := open(ctx, client, source.URL)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return format.ParseDeepZoom(r, strings.TrimSuffix(source.URL, ".dzi"))

	case "iiif":
		r, err := open(ctx, client, strings.TrimSuffix(source.URL, "/")+"/info.json")
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return format.ParseIIIFInfo(r)

	case "pattern":
		g, err := pyramid.New(pyramid.Config{
			Width:      source.Width,
			Height:     source.Height,
			TileSide:   source.TileSize,
			Overlap:    source.Overlap,
			LevelCount: source.Levels,
		})
		if err != nil {
			return nil, err
		}
		return format.NewPattern(source.Pattern, g, source.Channels)
	}
	return nil, fmt.Errorf("invalid source type: %q", source.Type)
}

func newLoader(source sourceConfig, adapter format.Adapter, client *http.Client, userAgent string) fetch.Loader {
	location := source.URL
	if location == "" && len(source.Planes) > 0 {
		location = source.Planes[0]
	}
	if location == "" {
		location = source.Pattern
	}
	if remote(location) {
		return fetch.NewHTTPLoader(adapter, fetch.WithClient(client), fetch.WithUserAgent(userAgent))
	}
	return fetch.NewFileLoader(adapter)
}
