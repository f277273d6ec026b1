// Package reminder decides which reminder tier, if any, a payment is due for.
package reminder

import (
	"fmt"
	"time"

	"billing-workers/internal/billing/schedule"
)

// Tier identifies how many days before the due date a reminder fires.
type Tier string

const (
	None    Tier = ""
	Tier30d Tier = "30d"
	Tier15d Tier = "15d"
	Tier5d  Tier = "5d"
)

// Mode selects between exact-day and catch-up matching.
type Mode string

const (
	// ModeExact fires a tier only on its exact day. A missed run skips the tier.
	ModeExact Mode = "exact"
	// ModeCatchUp fires the nearest tier whose day has been reached but whose
	// successor has not. Deduplication keeps it to one reminder per tier.
	ModeCatchUp Mode = "catch_up"
)

// ParseMode accepts "exact" and "catch_up".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExact, ModeCatchUp:
		return Mode(s), nil
	case "":
		return ModeExact, nil
	default:
		return "", fmt.Errorf("unknown reminder match mode %q", s)
	}
}

// TierFor is the exact-day rule. Monthly payments only get the 5 day reminder.
func TierFor(daysUntilDue int, frequency schedule.Frequency) Tier {
	if frequency == schedule.Monthly {
		if daysUntilDue == 5 {
			return Tier5d
		}
		return None
	}

	switch daysUntilDue {
	case 30:
		return Tier30d
	case 15:
		return Tier15d
	case 5:
		return Tier5d
	default:
		return None
	}
}

func catchUpTier(daysUntilDue int, frequency schedule.Frequency) Tier {
	switch {
	case daysUntilDue < 0:
		return None
	case daysUntilDue <= 5:
		return Tier5d
	case frequency == schedule.Monthly:
		return None
	case daysUntilDue <= 15:
		return Tier15d
	case daysUntilDue <= 30:
		return Tier30d
	default:
		return None
	}
}

// Policy applies the configured matching mode.
type Policy struct {
	Mode Mode
}

func (p Policy) Tier(daysUntilDue int, frequency schedule.Frequency) Tier {
	if p.Mode == ModeCatchUp {
		return catchUpTier(daysUntilDue, frequency)
	}
	return TierFor(daysUntilDue, frequency)
}

// DaysUntil counts calendar days from now to due in loc. A payment due later
// today is 0 days away; one due yesterday is -1.
func DaysUntil(now, due time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	d := due.In(loc)
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// NoticeTier labels a fixed notice window, e.g. 30 -> "30d".
func NoticeTier(days int) string {
	return fmt.Sprintf("%dd", days)
}
