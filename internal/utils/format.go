// Package utils provides shared utility functions
package utils

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"bytes", "KB", "MB", "GB", "TB"}

// BytesToSize converts a byte count to a display string such as "1.5 KB".
// The value is bytes / 1024^i for the largest whole power i, rounded to one
// decimal place with a trailing ".0" dropped.
func BytesToSize(bytes int64) string {
	if bytes <= 0 {
		return "0 bytes"
	}
	i := 0
	for v := bytes; v >= 1024 && i < len(sizeUnits)-1; v /= 1024 {
		i++
	}
	value := math.Round(float64(bytes)/math.Pow(1024, float64(i))*10) / 10
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatBytes is BytesToSize for unsigned counters such as bucket usage.
func FormatBytes(bytes uint64) string {
	if bytes > math.MaxInt64 {
		bytes = math.MaxInt64
	}
	return BytesToSize(int64(bytes))
}
