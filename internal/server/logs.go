package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	DefaultTailLines = 100
	MaxTailLines     = 5000

	tailChunkSize = 64 * 1024
)

// LogReader returns the trailing lines of the server log.
type LogReader interface {
	Tail(n int) ([]string, error)
}

// FileLogReader tails a log file by reading backwards in chunks, so large
// logs are never loaded whole.
type FileLogReader struct {
	Path string
}

func (r *FileLogReader) Tail(n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}

	f, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	offset := stat.Size()
	var buf []byte
	for offset > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		size := int64(tailChunkSize)
		if size > offset {
			size = offset
		}
		offset -= size

		chunk := make([]byte, size)
		if _, err := f.ReadAt(chunk, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read log file: %w", err)
		}
		buf = append(chunk, buf...)
	}

	text := strings.TrimRight(string(buf), "\r\n")
	if text == "" {
		return []string{}, nil
	}

	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}

func normalizeTailLines(n int) int {
	if n <= 0 {
		return DefaultTailLines
	}
	if n > MaxTailLines {
		return MaxTailLines
	}
	return n
}
