package filepaths

import (
	"fmt"
	"os"
	"path/filepath"
)

const ManifestFileName = "manifest.json"

// ShardFileName returns the name of the index'th (0 based) of count shard files, e.g. shard-00003-of-00010.jsonl.gz
func ShardFileName(index, count int, ext string) string {
	return fmt.Sprintf("shard-%05d-of-%05d.jsonl%s", index, count, ext)
}

func ShardPath(outputDir string, index, count int, ext string) string {
	return filepath.Join(outputDir, ShardFileName(index, count, ext))
}

func ManifestPath(outputDir string) string {
	return filepath.Join(outputDir, ManifestFileName)
}

// EnsureOutputDir creates the output directory (and parents) if needed and verifies it is a directory
func EnsureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", dir)
	}
	return nil
}
