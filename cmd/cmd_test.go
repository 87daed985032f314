package cmd

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/constants"
	"github.com/turbot/reshard/internal/filepaths"
)

func writeGzip(t *testing.T, path string, lines int) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for i := 0; i < lines; i++ {
		_, err := fmt.Fprintf(zw, `{"id":%d,"user":{"id":1},"created_at":"2021-06-01T00:00:00Z"}`+"\n", i)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// execute runs the root command with args, returning the exit code and output
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	viper.Reset()
	exitCode = 0

	var out, errOut bytes.Buffer
	root := rootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	if err := root.ExecuteContext(context.Background()); err != nil {
		exitCode = constants.ExitCodeFatal
	}
	return exitCode, out.String(), errOut.String()
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, constants.ExitCodeSuccess},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), constants.ExitCodeCancelled},
		{"run deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), constants.ExitCodeCancelled},
		{"tolerance", &toleranceExceededError{failed: 3, tolerance: 1}, constants.ExitCodeToleranceExceeded},
		{"other", errors.New("boom"), constants.ExitCodeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeForError(tt.err))
		})
	}
}

func TestRunCommand(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeGzip(t, filepath.Join(in, "a.json.gz"), 10)
	writeGzip(t, filepath.Join(in, "nested", "b.json.gz"), 5)

	code, stdout, stderr := execute(t, "run",
		"--input-dir", in,
		"--output-dir", out,
		"--shards", "3",
		"--output-codec", "zstd",
		"--progress=false",
	)
	require.Equal(t, constants.ExitCodeSuccess, code, stderr)
	assert.Contains(t, stdout, "Records")

	for i := 0; i < 3; i++ {
		assert.FileExists(t, filepaths.ShardPath(out, i, 3, ".zst"))
	}
	assert.FileExists(t, filepaths.ManifestPath(out))
}

func TestRunCommand_FailureTolerance(t *testing.T) {
	in := t.TempDir()
	writeGzip(t, filepath.Join(in, "good.json.gz"), 3)
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad1.json.gz"), []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad2.json.gz"), []byte("junk"), 0644))

	code, _, stderr := execute(t, "run", "--input-dir", in, "--output-dir", t.TempDir(), "--failure-tolerance", "1", "--progress=false")
	assert.Equal(t, constants.ExitCodeToleranceExceeded, code)
	assert.Contains(t, stderr, "failure tolerance")

	// within tolerance
	code, _, _ = execute(t, "run", "--input-dir", in, "--output-dir", t.TempDir(), "--failure-tolerance", "2", "--progress=false")
	assert.Equal(t, constants.ExitCodeSuccess, code)
}

func TestRunCommand_InvalidRoot(t *testing.T) {
	code, _, stderr := execute(t, "run", "--input-dir", filepath.Join(t.TempDir(), "missing"), "--output-dir", t.TempDir(), "--progress=false")
	assert.Equal(t, constants.ExitCodeFatal, code)
	assert.Contains(t, stderr, "invalid input root")
}

func TestRunCommand_InvalidFlags(t *testing.T) {
	code, _, _ := execute(t, "run", "--input-dir", t.TempDir(), "--output-dir", t.TempDir(), "--output-codec", "lz4")
	assert.Equal(t, constants.ExitCodeFatal, code)

	code, _, stderr := execute(t, "run", "--input-dir", t.TempDir())
	assert.Equal(t, constants.ExitCodeFatal, code)
	assert.Contains(t, stderr, "--output-dir is required")
}

func TestRunCommand_EnvConfig(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeGzip(t, filepath.Join(in, "a.json.gz"), 4)
	t.Setenv("RESHARD_INPUT_DIR", in)
	t.Setenv("RESHARD_OUTPUT_DIR", out)
	t.Setenv("RESHARD_SHARDS", "2")
	t.Setenv("RESHARD_OUTPUT_CODEC", "none")

	code, _, stderr := execute(t, "run", "--progress=false")
	require.Equal(t, constants.ExitCodeSuccess, code, stderr)
	assert.FileExists(t, filepaths.ShardPath(out, 1, 2, ""))
}

func TestDiscoverCommand(t *testing.T) {
	in := t.TempDir()
	writeGzip(t, filepath.Join(in, "a.json.gz"), 2)
	require.NoError(t, os.WriteFile(filepath.Join(in, "fake.json.gz"), []byte("plain text"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "ignored.txt"), []byte("x"), 0644))

	code, stdout, stderr := execute(t, "discover", "--input-dir", in, "--pattern", ".json.gz", "--verify")
	require.Equal(t, constants.ExitCodeSuccess, code, stderr)

	assert.Contains(t, stdout, "a.json.gz")
	assert.Contains(t, stdout, "fake.json.gz")
	assert.Contains(t, stdout, "none (mismatch)")
	assert.NotContains(t, stdout, "ignored.txt")
	assert.True(t, strings.Contains(stdout, "2 files"))
}

func TestSniffFile(t *testing.T) {
	dir := t.TempDir()
	gz := filepath.Join(dir, "a.gz")
	writeGzip(t, gz, 1)
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	name, err := sniffFile(gz)
	require.NoError(t, err)
	assert.Equal(t, codec.Gzip, name)

	name, err = sniffFile(empty)
	require.NoError(t, err)
	assert.Equal(t, codec.None, name)

	_, err = sniffFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
