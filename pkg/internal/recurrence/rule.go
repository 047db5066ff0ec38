// Package recurrence turns simplified host schedules into canonical
// recurrence rules and expands them into timezone-correct instants.
package recurrence

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"github.com/samber/lo"
	"github.com/teambition/rrule-go"
)

type Frequency string

const (
	FrequencyDaily    = Frequency("daily")
	FrequencyWeekly   = Frequency("weekly")
	FrequencyBiweekly = Frequency("biweekly")
	FrequencyMonthly  = Frequency("monthly")
)

// RuleOptions is the host-facing shape of a schedule.
type RuleOptions struct {
	Frequency Frequency
	Days      []time.Weekday
	Count     int
	Until     *time.Time
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// mondayFirst orders weekdays the way RFC 5545 weeks start by default.
func mondayFirst(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// BuildRule renders options as FREQ=...;INTERVAL=...;BYDAY=...;COUNT=...|UNTIL=...
func BuildRule(opts RuleOptions) (string, error) {
	var parts []string

	switch opts.Frequency {
	case FrequencyDaily:
		parts = append(parts, "FREQ=DAILY")
	case FrequencyWeekly:
		parts = append(parts, "FREQ=WEEKLY")
	case FrequencyBiweekly:
		parts = append(parts, "FREQ=WEEKLY", "INTERVAL=2")
	case FrequencyMonthly:
		parts = append(parts, "FREQ=MONTHLY")
	default:
		return "", errs.Validation("unsupported frequency %q", opts.Frequency)
	}

	if opts.Count < 0 {
		return "", errs.Validation("occurrence count cannot be negative")
	}
	if opts.Count > 0 && opts.Until != nil {
		return "", errs.Validation("occurrence count and end date are mutually exclusive")
	}

	if len(opts.Days) > 0 && opts.Frequency != FrequencyMonthly {
		days := lo.Uniq(opts.Days)
		slices.SortFunc(days, func(a, b time.Weekday) int {
			return mondayFirst(a) - mondayFirst(b)
		})
		codes := make([]string, 0, len(days))
		for _, day := range days {
			code, ok := weekdayCodes[day]
			if !ok {
				return "", errs.Validation("invalid weekday %d", day)
			}
			codes = append(codes, code)
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}

	if opts.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", opts.Count))
	} else if opts.Until != nil {
		// The end date is inclusive, so the bound is the last second of that day.
		y, m, d := opts.Until.Date()
		until := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
		parts = append(parts, "UNTIL="+until.Format("20060102T150405Z"))
	}

	return strings.Join(parts, ";"), nil
}

// ParseRule validates a canonical rule string.
func ParseRule(rule string) (*rrule.ROption, error) {
	if len(strings.TrimSpace(rule)) == 0 {
		return nil, errs.Validation("recurrence rule is empty")
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "invalid recurrence rule")
	}
	switch opt.Freq {
	case rrule.DAILY, rrule.WEEKLY, rrule.MONTHLY:
	default:
		return nil, errs.Validation("unsupported recurrence frequency in %q", rule)
	}
	return opt, nil
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(value string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, errs.Validation("invalid time of day %q, expected HH:MM", value)
}

func LoadLocation(tz string) (*time.Location, error) {
	if len(tz) == 0 {
		return nil, errs.Validation("timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "unknown timezone %q", tz)
	}
	return loc, nil
}
