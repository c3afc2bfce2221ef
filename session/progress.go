package session

import (
	"math"
	"strings"
	"time"
)

const (
	progressWidth  = 33
	progressFilled = "█"
	progressEmpty  = "░"
)

// ProgressBar renders elapsed out of total as a fixed width bar. Each cell
// covers three percent of the track, rounded up.
func ProgressBar(elapsed, total time.Duration) string {
	percent := 0.0
	if total > 0 && elapsed > 0 {
		percent = math.Ceil(float64(elapsed) / float64(total) * 100)
	}
	filled := int(math.Ceil(percent / 3))
	filled = max(0, min(filled, progressWidth))

	var b strings.Builder
	b.WriteString(strings.Repeat(progressFilled, filled))
	b.WriteString(strings.Repeat(progressEmpty, progressWidth-filled))
	return b.String()
}
