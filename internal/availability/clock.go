package availability

import (
	"strconv"
	"strings"
	"time"
)

const slotLabelLayout = "03:04 PM"

// ParseClock converts "HH:MM" (24-hour) or "HH:MM AM/PM" into minutes after
// midnight. A trailing seconds component ("HH:MM:SS") is tolerated.
func ParseClock(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))

	meridiem := ""
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		meridiem = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, false
		}
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return 0, false
		}
	default:
		if h < 1 || h > 12 {
			return 0, false
		}
		h %= 12
		if meridiem == "PM" {
			h += 12
		}
	}

	return h*60 + m, true
}

// clockMinutes treats unparseable input as midnight. Configs saved through
// Validate never hit this path.
func clockMinutes(s string) int {
	m, _ := ParseClock(s)
	return m
}

// FormatClock renders minutes after midnight as a 12-hour label, e.g. "09:00 AM".
func FormatClock(minutes int) string {
	return time.Date(2000, 1, 1, 0, minutes, 0, 0, time.UTC).Format(slotLabelLayout)
}
