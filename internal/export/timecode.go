package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimecode renders seconds as HH:MM:SS,mmm. Negative input renders as zero.
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimecode parses HH:MM:SS,mmm into seconds.
func ParseTimecode(tc string) (float64, error) {
	clock, millis, ok := strings.Cut(strings.TrimSpace(tc), ",")
	if !ok {
		return 0, fmt.Errorf("invalid timecode format: %s", tc)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", clock)
	}

	var vals [4]int
	for i, p := range append(parts, millis) {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode component %q in %s", p, tc)
		}
		vals[i] = v
	}
	h, m, s, ms := vals[0], vals[1], vals[2], vals[3]
	if h < 0 || m < 0 || m >= 60 || s < 0 || s >= 60 || ms < 0 || ms >= 1000 {
		return 0, fmt.Errorf("time values out of range: %s", tc)
	}
	return float64(h*3600+m*60+s) + float64(ms)/1000.0, nil
}
