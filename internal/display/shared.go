package display

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

func humanizeBytes(bytes int64) string {
	return humanize.Bytes(uint64(math.Max(float64(bytes), 0)))
}

func humanizeCount(n int64) string {
	return humanize.Comma(n)
}

func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
