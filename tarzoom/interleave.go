package tarzoom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Interleave merges plain packs, one per channel, into a single interleaved
// pack at output. All planes must share the same pyramid; the other index
// fields are taken from the last plane.
func Interleave(planes []string, output string) (*Index, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: no planes", ErrInvalidIndex)
	}

	indexes := make([]*Index, len(planes))
	data := make([]*os.File, len(planes))
	defer func() {
		for _, f := range data {
			if f != nil {
				f.Close()
			}
		}
	}()
	for i, plane := range planes {
		base := strings.TrimSuffix(plane, IndexExt)
		index, err := LoadIndex(base)
		if err != nil {
			return nil, fmt.Errorf("plane %v: %w", plane, err)
		}
		if index.Interleaved() {
			return nil, fmt.Errorf("%w: plane %v is already interleaved", ErrInvalidIndex, plane)
		}
		if i > 0 && len(index.Offsets) != len(indexes[0].Offsets) {
			return nil, fmt.Errorf("%w: plane %v has %d tiles, want %d",
				ErrInvalidIndex, plane, len(index.Offsets)-1, len(indexes[0].Offsets)-1)
		}
		indexes[i] = index
		if data[i], err = os.Open(base + DataExt); err != nil {
			return nil, err
		}
	}

	merged := *indexes[len(indexes)-1]
	merged.Mode = ModeInterleaved
	merged.Stride = len(planes)
	merged.Offsets = make([]uint64, 0, (len(indexes[0].Offsets)-1)*len(planes)+1)

	file, err := os.Create(output + DataExt)
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriter(file)

	sizes := make([][]uint64, len(indexes))
	for i, index := range indexes {
		sizes[i] = index.Sizes()
	}
	readers := make([]*bufio.Reader, len(data))
	for i, f := range data {
		readers[i] = bufio.NewReader(f)
	}

	var offset uint64
	for k := range sizes[0] {
		for p := range planes {
			merged.Offsets = append(merged.Offsets, offset)
			if _, err := io.CopyN(writer, readers[p], int64(sizes[p][k])); err != nil {
				return nil, errors.Join(fmt.Errorf("plane %v: %w", planes[p], err), file.Close())
			}
			offset += sizes[p][k]
		}
	}
	merged.Offsets = append(merged.Offsets, offset)

	if err := writer.Flush(); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	if err := merged.Save(output); err != nil {
		return nil, err
	}
	return &merged, nil
}
