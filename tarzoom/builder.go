package tarzoom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/eak1mov/go-pyramid/format"
)

// Builder packs DeepZoom trees ("{basename}.dzi" plus "{basename}_files/")
// into tarzoom packs.
type Builder struct {
	logger   *slog.Logger
	progress func(done, total int)
}

type builderConfig struct {
	Logger   *slog.Logger
	Progress func(done, total int)
}

type BuilderOption func(*builderConfig)

func WithLogger(logger *slog.Logger) BuilderOption {
	return func(c *builderConfig) { c.Logger = logger }
}

// WithProgress registers a callback invoked after every packed tile.
func WithProgress(progress func(done, total int)) BuilderOption {
	return func(c *builderConfig) { c.Progress = progress }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	config := builderConfig{
		Logger:   slog.New(slog.DiscardHandler),
		Progress: func(int, int) {},
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Builder{logger: config.Logger, progress: config.Progress}
}

type levelDir struct {
	level int
	path  string
}

// levelDirs lists the numeric level directories of a DeepZoom tree, in
// numeric order.
func (b *Builder) levelDirs(root string) ([]levelDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []levelDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		level, err := strconv.Atoi(entry.Name())
		if err != nil {
			b.logger.Warn("pyramid: skipping non-level directory", "path", entry.Name())
			continue
		}
		dirs = append(dirs, levelDir{level: level, path: filepath.Join(root, entry.Name())})
	}
	slices.SortFunc(dirs, func(a, b levelDir) int { return a.level - b.level })
	return dirs, nil
}

// Build writes "{basename}.tzb" and "{basename}.tzi" and returns the index.
// Every tile of every level directory must be present.
func (b *Builder) Build(basename string) (*Index, error) {
	descriptor, err := os.Open(basename + ".dzi")
	if err != nil {
		return nil, err
	}
	dz, err := format.ParseDeepZoom(descriptor, basename)
	descriptor.Close()
	if err != nil {
		return nil, err
	}

	root := basename + "_files"
	dirs, err := b.levelDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: no level directories in %v", ErrMissingTile, root)
	}

	g := dz.Geometry()
	index := &Index{
		Width:    g.Width(),
		Height:   g.Height(),
		TileSize: g.TileSide(),
		Overlap:  g.Overlap(),
		Format:   dz.TileFormat(),
		Levels:   len(dirs),
		Offsets:  []uint64{0},
	}
	geometry, err := index.Geometry()
	if err != nil {
		return nil, err
	}
	pattern, err := format.NewPattern(filepath.Join(root, "{level}", "{x}_{y}."+index.Format), geometry, 1)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(basename + DataExt)
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriter(file)

	b.logger.Info("pyramid: building tarzoom", "basename", basename, "levels", len(dirs), "tiles", geometry.TileCount())
	var offset uint64
	done := 0
	for level, dir := range dirs {
		files, err := b.levelFiles(pattern, dir)
		if err != nil {
			return nil, errors.Join(err, file.Close())
		}
		for x, y := range geometry.GridBox(level).Cells() {
			path, ok := files[[2]int{x, y}]
			if !ok {
				return nil, errors.Join(fmt.Errorf("%w: level %d tile %d_%d", ErrMissingTile, dir.level, x, y), file.Close())
			}
			size, err := copyFile(writer, path)
			if err != nil {
				return nil, errors.Join(err, file.Close())
			}
			offset += uint64(size)
			index.Offsets = append(index.Offsets, offset)
			done++
			b.progress(done, geometry.TileCount())
		}
		if extra := len(files) - geometry.GridExtent(level).Count(); extra > 0 {
			b.logger.Warn("pyramid: ignoring tiles outside of level grid", "level", dir.level, "count", extra)
		}
	}

	if err := writer.Flush(); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	if err := index.Save(basename); err != nil {
		return nil, err
	}
	b.logger.Info("pyramid: tarzoom done", "bytes", offset)
	return index, nil
}

// levelFiles maps grid coordinates to tile files of one level directory.
func (b *Builder) levelFiles(pattern *format.Pattern, dir levelDir) (map[[2]int]string, error) {
	entries, err := os.ReadDir(dir.path)
	if err != nil {
		return nil, err
	}
	files := make(map[[2]int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir.path, entry.Name())
		id, _, ok := pattern.Match(path)
		if !ok || id.Level != dir.level {
			b.logger.Debug("pyramid: skipping file", "path", path)
			continue
		}
		files[[2]int{id.X, id.Y}] = path
	}
	return files, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return io.Copy(w, file)
}
