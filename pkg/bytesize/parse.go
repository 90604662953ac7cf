// Package bytesize parses and formats human-friendly byte sizes.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	KB int64 = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

// suffixes is ordered longest first so "KB" wins over "B".
var suffixes = []struct {
	unit  string
	bytes int64
}{
	{"KIB", KB}, {"MIB", MB}, {"GIB", GB}, {"TIB", TB},
	{"KB", KB}, {"MB", MB}, {"GB", GB}, {"TB", TB},
	{"K", KB}, {"M", MB}, {"G", GB}, {"T", TB},
	{"B", 1},
}

// Parse reads a size such as "512MB", "1.5GiB", "64g" or a bare number of
// bytes. Units are 1024 based and case-insensitive.
func Parse(s string) (int64, error) {
	raw := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.unit) {
			multiplier = sfx.bytes
			s = strings.TrimSpace(strings.TrimSuffix(s, sfx.unit))
			break
		}
	}
	if s == "" {
		return 0, fmt.Errorf("invalid size %q: missing numeric value", raw)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value not allowed", raw)
	}

	result := value * float64(multiplier)
	if result >= math.MaxInt64 {
		return 0, fmt.Errorf("size %q exceeds maximum allowed value", raw)
	}
	return int64(result), nil
}

// Format renders n with the largest unit that keeps the value at least one,
// e.g. 1536 → "1.5KB".
func Format(n int64) string {
	units := []struct {
		unit  string
		bytes int64
	}{{"TB", TB}, {"GB", GB}, {"MB", MB}, {"KB", KB}}

	for _, u := range units {
		if n >= u.bytes {
			v := strconv.FormatFloat(float64(n)/float64(u.bytes), 'f', 1, 64)
			return strings.TrimSuffix(v, ".0") + u.unit
		}
	}
	return strconv.FormatInt(n, 10) + "B"
}
