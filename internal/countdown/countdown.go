package countdown

import (
	"fmt"
	"time"
)

// Placeholder is rendered whenever the device clock is unknown.
const Placeholder = "--:--:--"

// Until returns the time remaining until the next instant with the given
// hour:minute:00 on or after the appliance's reported clock, formatted as
// zero-padded HH:MM:SS. The appliance clock is epoch seconds; an instant
// exactly equal to the alarm yields "00:00:00", an instant already past rolls
// to the same time on the following day. A zero/negative clock means the
// appliance has not reported time yet and yields Placeholder.
//
// Pure; callers recompute on every poll tick rather than caching the result.
func Until(deviceClock int64, hour, minute int) string {
	if deviceClock <= 0 {
		return Placeholder
	}
	return Format(Remaining(deviceClock, hour, minute))
}

// Remaining computes the countdown as a duration. Always >= 0 and < 24h.
func Remaining(deviceClock int64, hour, minute int) time.Duration {
	now := time.Unix(deviceClock, 0).UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if target.Before(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}

// Format renders a duration as zero-padded HH:MM:SS.
func Format(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
