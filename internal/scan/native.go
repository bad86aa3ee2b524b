package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"

	"sheetsync/internal/core"
)

var spreadsheetExt = map[string]bool{
	"xlsx": true,
	"xls":  true,
	"csv":  true,
}

// Native lists regular files directly under a directory on the local filesystem.
// Sub-directories are not descended into.
type Native struct{}

// ListDirectory implements core.FileLister.
func (Native) ListDirectory(ctx context.Context, path string) ([]core.FileDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	files := make([]core.FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Stat.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		files = append(files, describe(full, info, birthTime(full, info)))
	}
	return files, nil
}

// birthTime returns the file's creation time, or its modification time on
// platforms and filesystems that do not record one.
func birthTime(path string, info os.FileInfo) time.Time {
	ts, err := times.Stat(path)
	if err != nil || !ts.HasBirthTime() {
		return info.ModTime()
	}
	return ts.BirthTime()
}

func describe(path string, info os.FileInfo, created time.Time) core.FileDescriptor {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(info.Name()), "."))
	return core.FileDescriptor{
		Name:          info.Name(),
		Path:          path,
		Size:          info.Size(),
		CreatedAt:     created,
		ModifiedAt:    info.ModTime(),
		Extension:     ext,
		IsSpreadsheet: spreadsheetExt[ext],
	}
}

// IsSpreadsheet reports whether a file name has a spreadsheet extension.
func IsSpreadsheet(name string) bool {
	return spreadsheetExt[strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))]
}

// Unsupported is the lister for hosts without filesystem access.
type Unsupported struct{}

// ListDirectory always fails with core.ErrListingUnsupported.
func (Unsupported) ListDirectory(context.Context, string) ([]core.FileDescriptor, error) {
	return nil, core.ErrListingUnsupported
}

// New selects a lister by name: "native" (default) or "none".
func New(kind string) (core.FileLister, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "native":
		return Native{}, nil
	case "none", "unsupported":
		return Unsupported{}, nil
	default:
		return nil, fmt.Errorf("unknown lister %q", kind)
	}
}
