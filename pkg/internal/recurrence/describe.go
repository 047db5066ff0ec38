package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Describe renders a rule for people, e.g. "Every week on Monday and
// Wednesday, 8 times". Invalid rules describe as an empty string.
func Describe(rule string) string {
	opt, err := ParseRule(rule)
	if err != nil {
		return ""
	}

	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}

	var unit string
	switch opt.Freq {
	case rrule.DAILY:
		unit = "day"
	case rrule.WEEKLY:
		unit = "week"
	case rrule.MONTHLY:
		unit = "month"
	}

	var sb strings.Builder
	if interval == 1 {
		sb.WriteString("Every " + unit)
	} else {
		sb.WriteString(fmt.Sprintf("Every %d %ss", interval, unit))
	}

	if len(opt.Byweekday) > 0 {
		names := make([]string, 0, len(opt.Byweekday))
		for i := range opt.Byweekday {
			names = append(names, dayNames[opt.Byweekday[i].Day()])
		}
		sb.WriteString(" on " + joinNames(names))
	}

	switch {
	case opt.Count == 1:
		sb.WriteString(", once")
	case opt.Count > 1:
		sb.WriteString(fmt.Sprintf(", %d times", opt.Count))
	case !opt.Until.IsZero():
		sb.WriteString(", until " + opt.Until.UTC().Format(time.DateOnly))
	}

	return sb.String()
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
