// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatValue formats a metric value according to its unit.
func FormatValue(v float64, unit string) string {
	switch unit {
	case "ns", "nanoseconds":
		return FormatNanos(v)
	case "bytes":
		return FormatBytes(v)
	default:
		return FormatCount(v)
	}
}

// FormatCount formats a count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatCount(v float64) string {
	abs := math.Abs(v)

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	case v == math.Trunc(v):
		return strconv.FormatInt(int64(v), 10)
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

// FormatNanos formats a nanosecond duration.
// e.g., 1500 -> "1.5µs", 2_500_000 -> "2.5ms", 3.2e9 -> "3.20s", 125e9 -> "2m 5s"
func FormatNanos(ns float64) string {
	abs := math.Abs(ns)
	switch {
	case abs >= 60e9:
		secs := int64(ns / 1e9)
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fs", ns/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fms", ns/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	default:
		return fmt.Sprintf("%.0fns", ns)
	}
}

// FormatBytes formats a byte count with binary suffixes.
// e.g., 512 -> "512 B", 1536 -> "1.5 KiB"
func FormatBytes(b float64) string {
	const unit = 1024
	abs := math.Abs(b)
	if abs < unit {
		return fmt.Sprintf("%.0f B", b)
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	v := b / unit
	i := 0
	for math.Abs(v) >= unit && i < len(suffixes)-1 {
		v /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", v, suffixes[i])
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatShare formats part as a percentage of whole, or "-" when whole is zero.
func FormatShare(part, whole float64) string {
	if whole == 0 {
		return "-"
	}
	return FormatPercent(part / whole)
}
