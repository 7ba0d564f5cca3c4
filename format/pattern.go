package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

// Pattern locates tiles with a URL or path template such as
// "https://example.com/tiles/{level}/{x}/{y}.jpg". Multi-channel layouts
// must also use the {channel} placeholder.
type Pattern struct {
	pattern  string
	geometry *pyramid.Geometry
	channels int
	re       *regexp.Regexp
}

var placeholders = []string{"{level}", "{x}", "{y}", "{channel}"}

func NewPattern(pattern string, geometry *pyramid.Geometry, channels int) (*Pattern, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidPattern, channels)
	}
	required := placeholders[:3]
	if channels > 1 {
		required = placeholders
	}
	for _, p := range required {
		if !strings.Contains(pattern, p) {
			return nil, fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}

	re, err := compilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return &Pattern{pattern: pattern, geometry: geometry, channels: channels, re: re}, nil
}

// compilePattern turns the template into an anchored regexp with one named
// group per placeholder. Literal parts are quoted.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	rest := pattern
	for len(rest) > 0 {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:start]))
		rest = rest[start:]

		matched := false
		for _, p := range placeholders {
			if strings.HasPrefix(rest, p) {
				fmt.Fprintf(&b, `(?P<%s>\d+)`, strings.Trim(p, "{}"))
				rest = rest[len(p):]
				matched = true
				break
			}
		}
		if !matched {
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func (p *Pattern) Format(id tile.ID, channel int) string {
	return strings.NewReplacer(
		"{level}", strconv.Itoa(id.Level),
		"{x}", strconv.Itoa(id.X),
		"{y}", strconv.Itoa(id.Y),
		"{channel}", strconv.Itoa(channel),
	).Replace(p.pattern)
}

// Match parses a formatted URL or path back into tile coordinates and
// channel. Paths that do not follow the pattern report false.
func (p *Pattern) Match(path string) (tile.ID, int, bool) {
	matches := p.re.FindStringSubmatch(path)
	if matches == nil {
		return tile.ID{}, 0, false
	}
	value := func(name string) int {
		i := p.re.SubexpIndex(name)
		if i < 0 {
			return 0
		}
		v, _ := strconv.Atoi(matches[i])
		return v
	}
	return tile.ID{Level: value("level"), X: value("x"), Y: value("y")}, value("channel"), true
}

func (p *Pattern) Geometry() *pyramid.Geometry { return p.geometry }
func (p *Pattern) Channels() int               { return p.channels }

func (p *Pattern) Locate(channel int, t *tile.Tile) (Resource, error) {
	if err := CheckTile(p, channel, t); err != nil {
		return Resource{}, err
	}
	return Resource{URL: p.Format(t.ID, channel)}, nil
}
