package util

import (
	"fmt"
	"math"
)

// MillisToTimeString formats a playback position as m:ss,
// or h:mm:ss for positions of an hour or more.
func MillisToTimeString(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	sec := int(math.Round(float64(ms) / 1000))
	hr := sec / 3600
	sec -= hr * 3600
	min := sec / 60
	sec -= min * 60

	if hr > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hr, min, sec)
	}
	return fmt.Sprintf("%d:%02d", min, sec)
}

// Fraction returns pos/dur clamped to [0, 1], or 0 if dur is unknown.
func Fraction(pos, dur int64) float64 {
	if dur <= 0 {
		return 0
	}
	f := float64(pos) / float64(dur)
	return math.Max(0, math.Min(1, f))
}

// Truncate shortens s to at most n runes, ending it with an ellipsis if cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
