package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/turbot/reshard/internal/encode"
)

// Manifest describes the output of a run. It is written to manifest.json alongside the shards.
type Manifest struct {
	RunID       string            `json:"run_id"`
	Started     time.Time         `json:"started"`
	Finished    time.Time         `json:"finished"`
	InputDir    string            `json:"input_dir"`
	Pattern     string            `json:"pattern"`
	OutputCodec string            `json:"output_codec"`
	ShardCount  int               `json:"shard_count"`
	Shards      []ManifestShard   `json:"shards"`
	Stats       StatsSnapshot     `json:"stats"`
	FailedFiles []ManifestFailure `json:"failed_files,omitempty"`
}

type ManifestShard struct {
	Index   int    `json:"index"`
	File    string `json:"file"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

type ManifestFailure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (c *Coordinator) manifest(res *Result) *Manifest {
	m := &Manifest{
		RunID:       c.runID,
		Started:     res.Started.UTC(),
		Finished:    time.Now().UTC(),
		InputDir:    c.inputDir,
		Pattern:     c.pattern,
		OutputCodec: string(c.outputCodec.Name()),
		ShardCount:  c.shards,
		Stats:       c.stats.Snapshot(),
	}
	m.Stats.Duration = m.Finished.Sub(m.Started)
	for _, s := range res.Shards {
		m.Shards = append(m.Shards, ManifestShard{
			Index:   s.Index,
			File:    filepath.Base(s.Path),
			Records: s.Records,
			Bytes:   s.Bytes,
		})
	}
	for _, f := range c.failures.Files() {
		m.FailedFiles = append(m.FailedFiles, ManifestFailure{Path: f.Path, Kind: string(f.Kind), Error: f.Err.Error()})
	}
	return m
}

// ReadManifest loads a manifest written by a previous run
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// writeManifest writes the manifest to a temp file and renames it into place
func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func sortResults(results []encode.Result) {
	slices.SortFunc(results, func(a, b encode.Result) int {
		return a.Index - b.Index
	})
}
