package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/xkilldash9x/mindfields/api/schemas"
)

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, entries []schemas.CorpusEntry) error {
	bw := bufio.NewWriter(w)
	stream := json.ConfigCompatibleWithStandardLibrary.BorrowStream(bw)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	for i := range entries {
		stream.WriteVal(&entries[i])
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return fmt.Errorf("failed to encode corpus entry %d: %w", i, stream.Error)
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	return bw.Flush()
}

// WriteFile writes the corpus to path, gzip-compressed when path ends in ".gz".
// "-" writes to stdout.
func WriteFile(path string, entries []schemas.CorpusEntry) error {
	if path == StdioPath {
		return WriteJSONL(os.Stdout, entries)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create corpus file: %w", err)
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}

	if err := WriteJSONL(w, entries); err != nil {
		f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return f.Close()
}

// ReadJSONL reads a corpus written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]schemas.CorpusEntry, error) {
	var out []schemas.CorpusEntry
	dec := json.ConfigCompatibleWithStandardLibrary.NewDecoder(r)
	for dec.More() {
		var e schemas.CorpusEntry
		if err := dec.Decode(&e); err != nil {
			return out, fmt.Errorf("failed to decode corpus entry %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}
