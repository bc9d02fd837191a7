package plans

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coworkgate/internal/types"
)

// ParseHHMM parses "HH:MM" (or "H:MM") into the comparable integer HHMM.
func ParseHHMM(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*100 + m, true
}

// FormatHHMM renders an HHMM integer as "HH:MM".
func FormatHHMM(v int) string {
	return fmt.Sprintf("%02d:%02d", v/100, v%100)
}

// AccessWindow returns the plan's daily access window. ok is false when
// either bound is missing or malformed, in which case no window applies.
func AccessWindow(p types.Plan) (start, end int, ok bool) {
	start, okStart := ParseHHMM(p.StartHour)
	end, okEnd := ParseHHMM(p.EndHour)
	if !okStart || !okEnd {
		return 0, 0, false
	}
	return start, end, true
}

// WithinWindow reports whether t's wall-clock minute lies in [start, end]
// inclusive. A window whose start is after its end wraps past midnight.
func WithinWindow(start, end int, t time.Time) bool {
	now := t.Hour()*100 + t.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// DescribeWindow renders a window as "HH:MM–HH:MM".
func DescribeWindow(start, end int) string {
	return FormatHHMM(start) + "–" + FormatHHMM(end)
}
