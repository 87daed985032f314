package filepaths

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/danwakefield/fnmatch"
)

// files a run writes to the output directory - anything matching these is replaced by the next run
var outputGlobs = []string{
	".shard-*.tmp",
	"shard-*-of-*.jsonl*",
	ManifestFileName,
}

// ShardTempPattern returns the os.CreateTemp pattern for the temporary file a shard is written to before
// being renamed into place
func ShardTempPattern(index int) string {
	return fmt.Sprintf(".shard-%05d-*.tmp", index)
}

// PruneOutputDir deletes the shard files, temporary shard files and manifest left in dir by an earlier
// (or interrupted) run, so that once a run completes the directory holds only that run's shards.
// Only the top level of dir is searched and other files are left alone. It returns the number of files removed.
func PruneOutputDir(dir string) (int, error) {
	// if dir does not exist there is nothing to prune
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isOutputFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		slog.Debug("removed previous output file", "path", path)
		removed++
	}
	return removed, nil
}

func isOutputFile(name string) bool {
	for _, g := range outputGlobs {
		if fnmatch.Match(g, name, 0) {
			return true
		}
	}
	return false
}

// ExcludeDir removes the files below dir from files - used to keep an output directory nested in the
// input root from being read back in
func ExcludeDir(files []SourceFile, dir string) []SourceFile {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return files
	}
	res := files[:0:0]
	for _, f := range files {
		if isBelow(f.Path, absDir) {
			slog.Debug("skipping file in output directory", "path", f.Path)
			continue
		}
		res = append(res, f)
	}
	return res
}

func isBelow(path, absDir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
