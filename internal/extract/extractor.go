// Package extract locates the single plain-text book inside an unpacked
// archive and pulls out its title.
package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoTextFile means the archive held no candidate text file.
	ErrNoTextFile = errors.New("no text file found in archive")
	// ErrAmbiguousArchive means more than one candidate matched. Policy is to
	// skip such archives entirely rather than guess.
	ErrAmbiguousArchive = errors.New("multiple text files found in archive")
	// ErrDecode means the candidate file is not valid UTF-8.
	ErrDecode = errors.New("text file could not be decoded")
	// ErrTitleNotFound means no line carried the title prefix.
	ErrTitleNotFound = errors.New("no title line found")
)

// Book is an extracted book ready for publishing.
type Book struct {
	Title     string
	Path      string
	SizeBytes int64
}

// titlePrefix anchors the title line, as in Project Gutenberg headers.
const titlePrefix = "Title:"

// Extract finds the single .txt file under dir, decodes it, and scans for the
// book title. Exactly one candidate must exist.
func Extract(dir string) (*Book, error) {
	candidates, err := findTextFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan unpacked archive: %w", err)
	}

	switch {
	case len(candidates) == 0:
		return nil, ErrNoTextFile
	case len(candidates) > 1:
		return nil, fmt.Errorf("%w: %d candidates", ErrAmbiguousArchive, len(candidates))
	}

	path := candidates[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrDecode, filepath.Base(path))
	}

	title, ok := scanTitle(data)
	if !ok {
		return nil, ErrTitleNotFound
	}

	return &Book{
		Title:     title,
		Path:      path,
		SizeBytes: int64(len(data)),
	}, nil
}

// findTextFiles walks dir collecting files with a .txt extension.
func findTextFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// scanTitle returns the remainder of the first line whose start matches the
// title prefix (case-insensitive), trimmed of surrounding whitespace. Lines
// whose remainder trims to nothing do not count as a match.
func scanTitle(data []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if len(line) < len(titlePrefix) {
			continue
		}
		if !strings.EqualFold(line[:len(titlePrefix)], titlePrefix) {
			continue
		}
		if title := strings.TrimSpace(line[len(titlePrefix):]); title != "" {
			return title, true
		}
	}

	return "", false
}
