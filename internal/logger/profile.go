package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/dustin/go-humanize"
)

// WriteHeapSnapshot writes a heap profile to dir that can be analyzed with pprof
func WriteHeapSnapshot(dir, label string) {
	filename := filepath.Join(dir, fmt.Sprintf("heap-%s-%s.prof", label, time.Now().Format("20060102-150405")))
	f, err := os.Create(filename)
	if err != nil {
		slog.Error("failed to create heap profile", "error", err)
		return
	}
	defer f.Close()

	// Force garbage collection before taking the snapshot
	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		slog.Error("failed to write heap profile", "error", err)
		return
	}
	slog.Info("wrote heap profile", "path", filename)
}

// StartCPUProfile starts CPU profiling to a file in dir and returns a function to stop it
func StartCPUProfile(dir, label string) func() {
	filename := filepath.Join(dir, fmt.Sprintf("cpu-%s-%s.prof", label, time.Now().Format("20060102-150405")))
	f, err := os.Create(filename)
	if err != nil {
		slog.Error("failed to create CPU profile", "error", err)
		return func() {}
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		slog.Error("failed to start CPU profile", "error", err)
		f.Close()
		return func() {}
	}

	slog.Info("started CPU profile", "path", filename)

	return func() {
		pprof.StopCPUProfile()
		f.Close()
		slog.Info("stopped CPU profile", "path", filename)
	}
}

// LogMemStats logs the current heap usage
func LogMemStats(label string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	slog.Info("memory stats",
		"label", label,
		"heap alloc", humanize.IBytes(m.HeapAlloc),
		"heap in use", humanize.IBytes(m.HeapInuse),
		"sys", humanize.IBytes(m.Sys),
		"gc cycles", m.NumGC)
}
