package filepaths

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/reshard/internal/codec"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"2023/02/b.json.gz",
		"2023/01/a.json.gz",
		"2023/01/A.JSON.GZ",
		"2023/01/notes.txt",
		"2023/01/c.json.zst",
		"top.json.gz",
	)

	files, skipped, err := Discover(root, "*.json.gz", "")
	require.NoError(t, err)
	assert.Empty(t, skipped)

	var got []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
		assert.Equal(t, codec.Gzip, f.Codec)
		assert.Equal(t, int64(1), f.Size)
	}
	assert.Equal(t, []string{"2023/01/A.JSON.GZ", "2023/01/a.json.gz", "2023/02/b.json.gz", "top.json.gz"}, got)
}

func TestDiscover_InferAndForceCodec(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.json.gz", "b.json.zst", "c.json")

	files, _, err := Discover(root, "*", "")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, codec.Gzip, files[0].Codec)
	assert.Equal(t, codec.Zstd, files[1].Codec)
	assert.Equal(t, codec.None, files[2].Codec)

	files, _, err = Discover(root, "*", codec.Xz)
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, codec.Xz, f.Codec)
	}
}

func TestDiscover_InvalidRoot(t *testing.T) {
	_, _, err := Discover(filepath.Join(t.TempDir(), "missing"), "*", "")
	assert.True(t, IsInvalidRoot(err))

	file := filepath.Join(t.TempDir(), "file.gz")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, _, err = Discover(file, "*", "")
	assert.True(t, IsInvalidRoot(err))
}

func TestDiscover_Empty(t *testing.T) {
	files, skipped, err := Discover(t.TempDir(), "*.gz", "")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, skipped)
}

func TestPatternForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{"gz", "*.gz"},
		{".gz", "*.gz"},
		{".json.bz2", "*.json.bz2"},
		{"tweets-*.gz", "tweets-*.gz"},
		{"", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, PatternForExtension(tt.ext))
		})
	}
}

func TestShardFileName(t *testing.T) {
	assert.Equal(t, "shard-00003-of-00010.jsonl.gz", ShardFileName(3, 10, ".gz"))
	assert.Equal(t, "shard-00000-of-00001.jsonl", ShardFileName(0, 1, ""))
}

func TestIsTransientOpenError(t *testing.T) {
	assert.True(t, IsTransientOpenError(&os.PathError{Op: "open", Path: "x", Err: syscall.EMFILE}))
	assert.True(t, IsTransientOpenError(syscall.EINTR))
	assert.False(t, IsTransientOpenError(os.ErrNotExist))
	assert.False(t, IsTransientOpenError(nil))
}

func TestPruneOutputDir(t *testing.T) {
	dir := t.TempDir()
	previous := []string{
		".shard-00001-123.tmp",
		ShardFileName(0, 4, ".gz"),
		ShardFileName(3, 4, ".gz"),
		ShardFileName(0, 2, ".zst"),
		ShardFileName(0, 1, ""),
		ManifestFileName,
	}
	kept := []string{"other.tmp", "notes.txt", "shard-notes.md"}
	writeFiles(t, dir, append(previous, kept...)...)
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".shard-dir.tmp"), 0755))

	n, err := PruneOutputDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(previous), n)
	for _, name := range previous {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
	for _, name := range kept {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.DirExists(t, filepath.Join(dir, ".shard-dir.tmp"))

	n, err = PruneOutputDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExcludeDir(t *testing.T) {
	root := t.TempDir()
	files := []SourceFile{
		{Path: filepath.Join(root, "a.json.gz")},
		{Path: filepath.Join(root, "out", "shard-00000-of-00001.jsonl.gz")},
		{Path: filepath.Join(root, "out", "nested", "b.json.gz")},
		{Path: filepath.Join(root, "outer", "c.json.gz")},
	}

	got := ExcludeDir(files, filepath.Join(root, "out"))
	require.Len(t, got, 2)
	assert.Equal(t, files[0].Path, got[0].Path)
	assert.Equal(t, files[3].Path, got[1].Path)

	// an output directory outside the root excludes nothing
	assert.Len(t, ExcludeDir(files, t.TempDir()), 4)
	// the input slice is untouched
	assert.Equal(t, filepath.Join(root, "out", "shard-00000-of-00001.jsonl.gz"), files[1].Path)
}
