package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/decode"
	"github.com/turbot/reshard/internal/failures"
	"github.com/turbot/reshard/internal/filepaths"
	"github.com/turbot/reshard/internal/record"
)

var lineSeq int

func line() string {
	lineSeq++
	return fmt.Sprintf(`{"id":%d,"user":{"id":%d},"text":"t","created_at":"2021-06-01T00:00:00Z"}`, lineSeq, lineSeq%13)
}

func lines(n int) []string {
	res := make([]string, n)
	for i := range res {
		res[i] = line()
	}
	return res
}

// writeInput writes a compressed input file of the given lines below root
func writeInput(t *testing.T, root, name string, content []string) string {
	t.Helper()
	c := codec.ForPath(name)
	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Join(content, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func run(t *testing.T, in, out string, opts ...CoordinatorOption) *Result {
	t.Helper()
	c, err := NewCoordinator(in, out, opts...)
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	return res
}

func readShards(t *testing.T, res *Result) []record.Record {
	t.Helper()
	var all []record.Record
	for _, s := range res.Shards {
		f, err := os.Open(s.Path)
		require.NoError(t, err)
		r, err := codec.ForPath(s.Path).NewReader(f)
		require.NoError(t, err)

		scanner := bufio.NewScanner(r)
		count := 0
		for scanner.Scan() {
			var rec record.Record
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
			all = append(all, rec)
			count++
		}
		require.NoError(t, scanner.Err())
		assert.Equal(t, s.Records, count)
		require.NoError(t, r.Close())
		require.NoError(t, f.Close())
	}
	return all
}

func TestRun_ScenarioA(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "1.json.gz", lines(10))
	writeInput(t, in, "2.json.gz", lines(5))
	writeInput(t, in, "3.json.gz", lines(7))

	res := run(t, in, out, WithDecodeWorkers(2), WithShards(4))

	assert.Equal(t, int64(3), res.Stats.FilesDiscovered)
	assert.Equal(t, int64(3), res.Stats.FilesSucceeded)
	assert.Equal(t, int64(0), res.Stats.FilesFailed)
	assert.Equal(t, int64(22), res.Stats.RecordsProduced)
	assert.Equal(t, int64(0), res.Stats.LinesSkipped)
	assert.Empty(t, res.FileFailures)
	assert.Empty(t, res.LineFailures)
	assert.LessOrEqual(t, res.Stats.DecodePeak, int64(2))

	require.Len(t, res.Shards, 4)
	assert.Len(t, readShards(t, res), 22)
}

func TestRun_ScenarioB(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "1.json.gz", lines(10))
	second := lines(4)
	second = append(second[:2], append([]string{`{"id": broken`}, second[2:]...)...)
	writeInput(t, in, "2.json.gz", second)
	writeInput(t, in, "3.json.gz", lines(7))

	res := run(t, in, out, WithDecodeWorkers(2))

	assert.Equal(t, int64(21), res.Stats.RecordsProduced)
	assert.Equal(t, int64(1), res.Stats.LinesSkipped)
	assert.Equal(t, int64(0), res.Stats.FilesFailed)
	require.Len(t, res.LineFailures, 1)
	assert.Equal(t, int64(3), res.LineFailures[0].Line)
	assert.True(t, strings.HasSuffix(res.LineFailures[0].Path, "2.json.gz"))
}

func TestRun_ScenarioC(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "1.json.gz", lines(10))
	corrupt := filepath.Join(in, "2.json.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not gzip"), 0644))
	writeInput(t, in, "3.json.gz", lines(7))

	res := run(t, in, out, WithDecodeWorkers(2))

	assert.Equal(t, int64(17), res.Stats.RecordsProduced)
	assert.Equal(t, int64(1), res.Stats.FilesFailed)
	assert.Equal(t, int64(2), res.Stats.FilesSucceeded)
	require.Len(t, res.FileFailures, 1)
	assert.Equal(t, corrupt, res.FileFailures[0].Path)
	assert.Equal(t, failures.KindCodec, res.FileFailures[0].Kind)

	sources := map[string]int{}
	for _, r := range readShards(t, res) {
		sources[filepath.Base(r.Source)]++
	}
	assert.Equal(t, map[string]int{"1.json.gz": 10, "3.json.gz": 7}, sources)
}

func TestRun_ScenarioD(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "a.json.gz", lines(60))
	writeInput(t, in, "b.json.gz", lines(41))

	res := run(t, in, out, WithShards(10))

	require.Len(t, res.Shards, 10)
	var sizes []int
	total := 0
	for _, s := range res.Shards {
		sizes = append(sizes, s.Records)
		total += s.Records
	}
	assert.Equal(t, []int{11, 10, 10, 10, 10, 10, 10, 10, 10, 10}, sizes)
	assert.Equal(t, 101, total)
	assert.Equal(t, int64(10), res.Stats.ShardsWritten)

	files, err := os.ReadDir(out)
	require.NoError(t, err)
	// the shards and the manifest, no temp files
	assert.Len(t, files, 11)
	for i := 0; i < 10; i++ {
		assert.FileExists(t, filepaths.ShardPath(out, i, 10, ".gz"))
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	const n, m = 40, 7
	in, out := t.TempDir(), t.TempDir()

	want := 0
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("d%02d/f%02d.json.gz", i%5, i)
		if i%6 == 0 {
			require.NoError(t, os.MkdirAll(filepath.Join(in, filepath.Dir(name)), 0755))
			require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte{0x1f, 0x8b, 0, 1, 2, 3}, 0644))
			continue
		}
		writeInput(t, in, name, lines(i))
		want += i
	}

	res := run(t, in, out, WithDecodeWorkers(4), WithEncodeWorkers(3), WithShards(7))

	assert.Equal(t, int64(n), res.Stats.FilesDiscovered)
	assert.Equal(t, int64(m), res.Stats.FilesFailed)
	assert.Equal(t, int64(n-m), res.Stats.FilesSucceeded)
	assert.Equal(t, int64(want), res.Stats.RecordsProduced)
	assert.Len(t, res.FileFailures, m)
	assert.Len(t, readShards(t, res), want)
}

func TestRun_Conservation(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	rawLines := 0
	for i := 0; i < 12; i++ {
		content := lines(i * 3)
		// sprinkle malformed, blank and incomplete lines
		if i%2 == 0 {
			content = append(content, "not json", "")
		}
		if i%3 == 0 {
			content = append(content, `{"id":1,"user":{"id":1},"created_at":"2021-06-01T00:00:00Z","retweeted_status":7}`)
		}
		rawLines += len(content)
		writeInput(t, in, fmt.Sprintf("f%02d.json.zst", i), content)
	}

	res := run(t, in, out, WithPattern("*.json.zst"), WithDecodeWorkers(3), WithShards(5), WithOutputCodec(codec.Snappy))

	assert.Equal(t, int64(0), res.Stats.FilesFailed)
	assert.Equal(t, int64(rawLines), res.Stats.RecordsProduced+res.Stats.LinesSkipped)
	assert.Len(t, readShards(t, res), int(res.Stats.RecordsProduced))
}

func TestRun_IncompleteRecordFailPolicy(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "good.json.gz", lines(3))
	writeInput(t, in, "bad.json.gz", append(lines(2), `{"id":1,"user":{"id":1},"created_at":"2021-06-01T00:00:00Z","retweeted_status":{}}`))

	res := run(t, in, out, WithIncompleteRecordPolicy(decode.IncompleteFail))

	assert.Equal(t, int64(3), res.Stats.RecordsProduced)
	require.Len(t, res.FileFailures, 1)
	assert.Equal(t, failures.KindIncompleteRecord, res.FileFailures[0].Kind)
}

func TestRun_InvalidRootFails(t *testing.T) {
	var states []State
	c, err := NewCoordinator(filepath.Join(t.TempDir(), "missing"), t.TempDir(),
		WithStateObserver(func(_, to State) { states = append(states, to) }))
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failures.ErrInvalidRoot)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateFailed}, states)
	assert.Empty(t, res.Shards)
}

func TestRun_StateSequence(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "a.json.gz", lines(3))

	var mu sync.Mutex
	var transitions []string
	run(t, in, out, WithStateObserver(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, from.String()+">"+to.String())
	}))

	assert.Equal(t, []string{
		"discovering>decoding",
		"decoding>barrier",
		"barrier>partitioning",
		"partitioning>encoding",
		"encoding>done",
	}, transitions)
}

func TestRun_EmptyInput(t *testing.T) {
	out := t.TempDir()
	res := run(t, t.TempDir(), out, WithShards(3))

	assert.Equal(t, int64(0), res.Stats.FilesDiscovered)
	require.Len(t, res.Shards, 3)
	for _, s := range res.Shards {
		assert.Equal(t, 0, s.Records)
	}
}

func TestRun_Manifest(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "a.json.gz", lines(9))
	require.NoError(t, os.WriteFile(filepath.Join(in, "b.json.gz"), []byte("junk"), 0644))

	c, err := NewCoordinator(in, out, WithShards(2), WithOutputCodec(codec.Zstd))
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, filepath.Join(out, "manifest.json"), res.ManifestPath)
	m, err := ReadManifest(res.ManifestPath)
	require.NoError(t, err)

	assert.Equal(t, c.RunID(), m.RunID)
	assert.Equal(t, "zstd", m.OutputCodec)
	assert.Equal(t, 2, m.ShardCount)
	require.Len(t, m.Shards, 2)
	assert.Equal(t, "shard-00000-of-00002.jsonl.zst", m.Shards[0].File)
	assert.Equal(t, 5, m.Shards[0].Records)
	assert.Equal(t, 4, m.Shards[1].Records)
	assert.Equal(t, int64(9), m.Stats.RecordsProduced)
	require.Len(t, m.FailedFiles, 1)
	assert.Equal(t, "codec", m.FailedFiles[0].Kind)
}

func TestRun_SortedOutputIsDeterministic(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 8; i++ {
		content := make([]string, 5)
		for j := range content {
			content[j] = fmt.Sprintf(`{"id":%d,"user":{"id":1},"created_at":"2021-06-01T00:%02d:00Z"}`, i*5+j, (i*7+j*3)%60)
		}
		writeInput(t, in, fmt.Sprintf("%d.json.gz", i), content)
	}

	var outputs [][]string
	for attempt := 0; attempt < 2; attempt++ {
		res := run(t, in, t.TempDir(), WithSortOutput(true), WithDecodeWorkers(4), WithShards(3))
		var ids []string
		for _, r := range readShards(t, res) {
			ids = append(ids, r.ID)
		}
		outputs = append(outputs, ids)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Len(t, outputs[0], 40)
}

// blockingParser blocks every parse until released, so a run can be cancelled mid decode
type blockingParser struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingParser) Parse(line []byte) (record.Raw, error) {
	p.once.Do(func() { close(p.started) })
	time.Sleep(5 * time.Millisecond)
	return record.JSONLineParser{}.Parse(line)
}

func TestRun_Cancelled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for i := 0; i < 20; i++ {
		writeInput(t, in, fmt.Sprintf("%02d.json.gz", i), lines(50))
	}

	parser := &blockingParser{started: make(chan struct{})}
	c, err := NewCoordinator(in, out, WithDecodeWorkers(2), WithParser(parser))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-parser.started
		cancel()
	}()

	res, err := c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, res.State)

	// every discovered file is accounted for and nothing was written
	assert.Equal(t, int64(20), res.Stats.FilesDiscovered)
	assert.Equal(t, res.Stats.FilesDiscovered, res.Stats.FilesSucceeded+res.Stats.FilesFailed)
	assert.Positive(t, res.Stats.FilesFailed)
	for _, f := range res.FileFailures {
		assert.Equal(t, failures.KindCancelled, f.Kind)
	}
	assert.Empty(t, res.Shards)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_FileTimeout(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "slow.json.gz", lines(200))

	parser := &blockingParser{started: make(chan struct{})}
	res := run(t, in, out, WithParser(parser), WithFileTimeout(20*time.Millisecond))

	assert.Equal(t, int64(1), res.Stats.FilesFailed)
	require.Len(t, res.FileFailures, 1)
	assert.Equal(t, failures.KindTimeout, res.FileFailures[0].Kind)
	assert.True(t, errors.Is(res.FileFailures[0], context.DeadlineExceeded))
}

func TestRun_RunDeadlineIsCancellation(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for i := 0; i < 20; i++ {
		writeInput(t, in, fmt.Sprintf("%02d.json.gz", i), lines(50))
	}

	parser := &blockingParser{started: make(chan struct{})}
	c, err := NewCoordinator(in, out, WithDecodeWorkers(2), WithParser(parser), WithFileTimeout(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateCancelled, res.State)

	// neither the files which were running nor those never admitted hit their own deadline
	assert.Equal(t, res.Stats.FilesDiscovered, res.Stats.FilesSucceeded+res.Stats.FilesFailed)
	require.NotEmpty(t, res.FileFailures)
	for _, f := range res.FileFailures {
		assert.Equal(t, failures.KindCancelled, f.Kind, f.Path)
	}
}

func shardFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "shard-*"))
	require.NoError(t, err)
	for i, m := range matches {
		matches[i] = filepath.Base(m)
	}
	return matches
}

func TestRun_ReusedOutputDir(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "1.json.gz", lines(10))
	writeInput(t, in, "2.json.gz", lines(5))

	first := run(t, in, out, WithShards(4))
	require.Len(t, first.Shards, 4)
	assert.Len(t, shardFiles(t, out), 4)

	second := run(t, in, out, WithShards(2), WithOutputCodec(codec.Zstd))
	require.Len(t, second.Shards, 2)
	assert.Equal(t, []string{
		filepaths.ShardFileName(0, 2, ".zst"),
		filepaths.ShardFileName(1, 2, ".zst"),
	}, shardFiles(t, out))

	// the directory holds each record exactly once
	assert.Len(t, readShards(t, second), 15)
	m, err := ReadManifest(filepaths.ManifestPath(out))
	require.NoError(t, err)
	assert.Equal(t, 2, m.ShardCount)
}

func TestRun_OutputDirInsideInput(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(in, "out")
	writeInput(t, in, "1.json.gz", lines(6))
	writeInput(t, in, "2.json.gz", lines(4))

	for i := 0; i < 2; i++ {
		res := run(t, in, out, WithShards(3), WithPattern("*.gz"))
		assert.Equal(t, int64(2), res.Stats.FilesDiscovered)
		assert.Equal(t, int64(10), res.Stats.RecordsProduced)
		assert.Zero(t, res.Stats.LinesSkipped)
	}
	assert.Len(t, shardFiles(t, out), 3)
}

func TestRun_ReadsOwnOutput(t *testing.T) {
	in, out, again := t.TempDir(), t.TempDir(), t.TempDir()
	writeInput(t, in, "1.json.gz", lines(7))
	writeInput(t, in, "2.json.gz", lines(5))

	first := run(t, in, out, WithShards(3), WithSortOutput(true))

	second := run(t, out, again, WithShards(2), WithPattern("*.jsonl.gz"), WithSortOutput(true))
	assert.Equal(t, int64(3), second.Stats.FilesDiscovered)
	assert.Zero(t, second.Stats.LinesSkipped)
	assert.Empty(t, second.LineFailures)

	ids := func(records []record.Record) []string {
		var res []string
		for _, r := range records {
			res = append(res, r.ID)
		}
		return res
	}
	assert.Equal(t, ids(readShards(t, first)), ids(readShards(t, second)))
}

func TestRun_OnlyOnce(t *testing.T) {
	c, err := NewCoordinator(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assert.Error(t, err)
}

func TestNewCoordinator_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
		opts []CoordinatorOption
	}{
		{"no input", "", "out", nil},
		{"no output", "in", "", nil},
		{"zero shards", "in", "out", []CoordinatorOption{WithShards(0)}},
		{"zero decode workers", "in", "out", []CoordinatorOption{WithDecodeWorkers(0)}},
		{"zero encode workers", "in", "out", []CoordinatorOption{WithEncodeWorkers(0)}},
		{"read only output codec", "in", "out", []CoordinatorOption{WithOutputCodec(codec.Bzip2)}},
		{"unknown input codec", "in", "out", []CoordinatorOption{WithInputCodec("lz4")}},
		{"unknown policy", "in", "out", []CoordinatorOption{WithIncompleteRecordPolicy("maybe")}},
		{"negative timeout", "in", "out", []CoordinatorOption{WithFileTimeout(-time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator(tt.in, tt.out, tt.opts...)
			assert.Error(t, err)
		})
	}
}
