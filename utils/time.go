package utils

import (
	"fmt"
	"time"
)

// Unit is the largest unit a timestamp is forced to show.
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
)

// FormatTimestamp formats d as H:MM:SS, M:SS or S depending on its size,
// padding up to at least the largest unit given.
func FormatTimestamp(d time.Duration, largest Unit) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := totalSeconds % 3600 / 60
	seconds := totalSeconds % 60

	switch {
	case hours > 0 || largest == Hour:
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	case minutes > 0 || largest == Minute:
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	default:
		return fmt.Sprintf("%d", seconds)
	}
}

// LargestUnit is the largest unit FormatTimestamp uses for d.
func LargestUnit(d time.Duration) Unit {
	switch {
	case d >= time.Hour:
		return Hour
	case d >= time.Minute:
		return Minute
	default:
		return Second
	}
}

// FormatDuration renders d in its natural units, e.g. "3:45".
func FormatDuration(d time.Duration) string {
	return FormatTimestamp(d, Second)
}
