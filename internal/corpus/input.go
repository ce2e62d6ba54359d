package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// StdioPath selects stdin as input or stdout as output.
const StdioPath = "-"

// Input is an opened UniProt dump. Position and Size refer to the bytes of the
// file on disk, so progress is meaningful for compressed inputs too.
type Input struct {
	io.Reader
	Size int64

	counter *countingReader
	closers []io.Closer
}

// Position returns how many bytes of the underlying file have been consumed.
func (in *Input) Position() int64 {
	return in.counter.n.Load()
}

// Close releases the decompressor and the file.
func (in *Input) Close() error {
	var first error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenInput opens path for reading. A ".gz" or ".br" suffix selects the
// matching decompressor and "-" reads stdin.
func OpenInput(path string) (*Input, error) {
	in := &Input{}

	var raw io.Reader
	if path == StdioPath {
		raw = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open corpus input: %w", err)
		}
		in.closers = append(in.closers, f)
		if info, err := f.Stat(); err == nil {
			in.Size = info.Size()
		}
		raw = f
	}
	in.counter = &countingReader{r: raw}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(in.counter)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
		}
		in.closers = append(in.closers, zr)
		in.Reader = zr
	case ".br":
		in.Reader = brotli.NewReader(in.counter)
	default:
		in.Reader = in.counter
	}
	return in, nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
