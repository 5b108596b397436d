package textproto

import "fmt"

var sizeUnits = [...]string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders n bytes as a short human-readable size (e.g.
// "1.5 KB").
func FormatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	f := float64(n)
	unit := 0
	for f >= 1024 && unit < len(sizeUnits)-1 {
		f /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", f, sizeUnits[unit])
}
