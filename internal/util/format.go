package util

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count with binary units and up to three
// truncated decimals, dropping trailing zeros ("1.5 KB", "1 MB").
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(1), 0
	for size/div >= unit && exp < len(sizeUnits)-1 {
		div *= unit
		exp++
	}

	value, remainder := size/div, size%div
	if remainder == 0 {
		return fmt.Sprintf("%d %s", value, sizeUnits[exp])
	}

	millis := remainder * 1000 / div
	switch {
	case millis%10 != 0:
		return fmt.Sprintf("%d.%03d %s", value, millis, sizeUnits[exp])
	case millis%100 != 0:
		return fmt.Sprintf("%d.%02d %s", value, millis/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", value, millis/100, sizeUnits[exp])
	}
}
