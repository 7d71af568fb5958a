package visualize

import "fmt"

// FormatDuration renders microseconds as milliseconds with two decimals, e.g. "12.34ms".
func FormatDuration(micros int64) string {
	return fmt.Sprintf("%.2fms", float64(micros)/1000)
}

// ShortID returns the last 12 characters of a trace or span ID.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[len(id)-12:]
}
