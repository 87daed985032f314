package filepaths

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danwakefield/fnmatch"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/failures"
)

// SourceFile is an input file found by Discover
type SourceFile struct {
	Path  string
	Codec codec.Name
	Size  int64
}

// PatternForExtension converts a bare extension ("gz", ".json.gz") into a file name pattern ("*.json.gz").
// Values which already contain pattern characters are returned unchanged.
func PatternForExtension(ext string) string {
	if ext == "" {
		return "*"
	}
	if strings.ContainsAny(ext, "*?[") {
		return ext
	}
	return "*." + strings.TrimPrefix(ext, ".")
}

// Discover walks root recursively and returns every regular file whose name matches pattern
// (case-insensitive fnmatch), sorted by path.
//
// If codecName is empty the codec of each file is inferred from its extension, otherwise it is forced.
//
// An invalid root is fatal and returns an error wrapping failures.ErrInvalidRoot. Entries below the root
// which cannot be read are returned as file access failures and the walk continues.
func Discover(root, pattern string, codecName codec.Name) ([]SourceFile, []*failures.FileError, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", failures.ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", failures.ErrInvalidRoot, root)
	}
	// make sure we can actually list it
	if _, err := os.ReadDir(root); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", failures.ErrInvalidRoot, err)
	}

	var files []SourceFile
	var skipped []*failures.FileError
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			skipped = append(skipped, failures.NewFileError(path, failures.KindFileAccess, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !fnmatch.Match(pattern, d.Name(), fnmatch.FNM_CASEFOLD) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skipped = append(skipped, failures.NewFileError(path, failures.KindFileAccess, err))
			return nil
		}
		name := codecName
		if name == "" {
			name = codec.ForPath(path).Name()
		}
		files = append(files, SourceFile{Path: path, Codec: name, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", failures.ErrInvalidRoot, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	slog.Debug("discovered files", "root", root, "pattern", pattern, "count", len(files), "skipped", len(skipped))
	return files, skipped, nil
}

// IsInvalidRoot returns whether err is the fatal discovery error
func IsInvalidRoot(err error) bool {
	return errors.Is(err, failures.ErrInvalidRoot)
}
