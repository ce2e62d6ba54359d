package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrEntryTooLarge is returned when a single <entry> does not fit in the read buffer.
var ErrEntryTooLarge = errors.New("buffer size is too small to get a full entry")

var (
	entryStart = []byte("<entry ")
	entryEnd   = []byte("</entry>")
)

// newEntryScanner returns a scanner whose tokens are complete <entry ...>...</entry>
// chunks. Anything between entries is skipped.
func newEntryScanner(r io.Reader, bufferSize int) *bufio.Scanner {
	initial := 64 * 1024
	if bufferSize < initial {
		initial = bufferSize
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, initial), bufferSize)
	s.Split(splitEntries)
	return s
}

func splitEntries(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, entryStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a tail that may hold the beginning of a start tag.
		if keep := len(entryStart) - 1; len(data) > keep {
			return len(data) - keep, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start:], entryEnd)
	if end < 0 {
		if atEOF {
			// Truncated trailing entry.
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + end + len(entryEnd)
	return stop, data[start:stop], nil
}

// scanErr maps scanner failures onto package errors.
func scanErr(err error) error {
	if errors.Is(err, bufio.ErrTooLong) {
		return ErrEntryTooLarge
	}
	return err
}
