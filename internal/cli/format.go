package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort renders an elapsed time for terminal output: tenths
// of a second under a minute ("4.2s"), otherwise M:SS or H:MM:SS.
func FormatDurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	total := int(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
