package recurrence

import (
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"github.com/teambition/rrule-go"
)

const DefaultHorizonDays = 90

// Expand resolves rule occurrences within [startDate, startDate+horizonDays]
// into UTC instants whose wall-clock time in tz equals timeOfDay.
//
// The rule is evaluated on dates only. Each date is then combined with the
// time of day and interpreted in the host's zone, so the UTC offset follows
// daylight saving changes while the local time stays fixed.
func Expand(rule, timeOfDay, tz string, startDate time.Time, horizonDays int) ([]time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	offset, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	dates, err := expandDates(rule, startDate, startDate.AddDate(0, 0, horizonDays))
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(dates))
	for _, date := range dates {
		out = append(out, compose(date, offset, loc))
	}
	return out, nil
}

// NextOccurrence returns the first instant strictly after the given one.
func NextOccurrence(rule, timeOfDay, tz string, startDate, after time.Time) (time.Time, bool, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, false, err
	}
	offset, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, false, err
	}
	r, err := dateRule(rule, startDate)
	if err != nil {
		return time.Time{}, false, err
	}

	// Dates before the day of `after` cannot qualify; the local date may trail
	// the UTC date by one, hence the extra day of slack.
	cursor := toDate(after.In(loc)).AddDate(0, 0, -1)
	for i := 0; i < 3660; i++ {
		date := r.After(cursor, false)
		if date.IsZero() {
			return time.Time{}, false, nil
		}
		instant := compose(date, offset, loc)
		if instant.After(after) {
			return instant, true, nil
		}
		cursor = date
	}
	return time.Time{}, false, nil
}

func expandDates(rule string, from, to time.Time) ([]time.Time, error) {
	r, err := dateRule(rule, from)
	if err != nil {
		return nil, err
	}
	return r.Between(toDate(from), toDate(to), true), nil
}

func dateRule(rule string, startDate time.Time) (*rrule.RRule, error) {
	opt, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = toDate(startDate)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "invalid recurrence rule")
	}
	return r, nil
}

// CivilDate returns the calendar date of t, as read in t's own zone, at UTC
// midnight. Series store their first day in this form so re-expanding a
// stored series starts from the same date the creating request named.
func CivilDate(t time.Time) time.Time {
	return toDate(t)
}

// toDate strips the clock, keeping the calendar date as read in t's zone.
func toDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func compose(date time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := date.Date()
	hour := int(offset / time.Hour)
	minute := int(offset % time.Hour / time.Minute)
	second := int(offset % time.Minute / time.Second)
	return time.Date(y, m, d, hour, minute, second, 0, loc).UTC()
}
