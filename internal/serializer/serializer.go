// Package serializer renders an adjacency graph as delimited text, one
// "<region><delimiter><neighbor>" record per line.
package serializer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
)

const DefaultDelimiter = ","

var (
	ErrInvalidDelimiter = errors.New("invalid delimiter")
	// ErrUnencodableRegion marks a region id holding the delimiter or a line
	// break; written as is, its record could not be split back.
	ErrUnencodableRegion = errors.New("region id not encodable")
)

// PairSource yields ordered pairs in their final output order.
type PairSource interface {
	Pairs() iter.Seq[model.Pair]
}

// ValidateDelimiter rejects delimiters that would break the line format.
func ValidateDelimiter(delim string) error {
	if delim == "" || strings.ContainsAny(delim, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, delim)
	}
	return nil
}

// Write emits every pair of g and returns the number of records written.
func Write(w io.Writer, g PairSource, delim string) (int, error) {
	if err := ValidateDelimiter(delim); err != nil {
		return 0, err
	}
	bw := bufio.NewWriterSize(w, 64<<10)
	n := 0
	for p := range g.Pairs() {
		if id, ok := unencodable(p, delim); ok {
			return n, fmt.Errorf("%w: %w: record %d: %q contains the delimiter or a line break",
				model.ErrOutputWriteFailed, ErrUnencodableRegion, n, id)
		}
		// bufio keeps the first error; checking once per record is enough
		bw.WriteString(string(p.Region))
		bw.WriteString(delim)
		bw.WriteString(string(p.Neighbor))
		if err := bw.WriteByte('\n'); err != nil {
			return n, fmt.Errorf("%w: record %d: %w", model.ErrOutputWriteFailed, n, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("%w: flush: %w", model.ErrOutputWriteFailed, err)
	}
	return n, nil
}

func unencodable(p model.Pair, delim string) (model.RegionID, bool) {
	for _, id := range [2]model.RegionID{p.Region, p.Neighbor} {
		if strings.Contains(string(id), delim) || strings.ContainsAny(string(id), "\r\n") {
			return id, true
		}
	}
	return "", false
}

// WriteFile writes g to a temporary file next to path and renames it into
// place only once every record is on disk. On failure path is left untouched.
func WriteFile(path string, g PairSource, delim string) (n int, err error) {
	if err := ValidateDelimiter(delim); err != nil {
		return 0, err
	}
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %w", model.ErrOutputWriteFailed, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if n, err = Write(f, g, delim); err != nil {
		return n, err
	}
	if err = f.Sync(); err != nil {
		return n, fmt.Errorf("%w: sync %s: %w", model.ErrOutputWriteFailed, tmp, err)
	}
	if err = f.Close(); err != nil {
		return n, fmt.Errorf("%w: close %s: %w", model.ErrOutputWriteFailed, tmp, err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return n, fmt.Errorf("%w: chmod %s: %w", model.ErrOutputWriteFailed, tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return n, fmt.Errorf("%w: rename to %s: %w", model.ErrOutputWriteFailed, path, err)
	}
	return n, nil
}
