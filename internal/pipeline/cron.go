package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// schedule is a parsed 5-field cron expression
// ("minute hour day-of-month month day-of-week"). Each field is a bitmask of
// the values it admits. As in Vixie cron, when both day fields are
// restricted a day matches if either one does.
type schedule struct {
	minute, hour, dom, month, dow uint64
	domAny, dowAny                bool
}

var cronMacros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

// cronBounds are the value ranges of the five fields. Day-of-week accepts 7
// as a second Sunday.
var cronBounds = [5]struct {
	name   string
	lo, hi int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

func parseSchedule(expr string) (schedule, error) {
	expr = strings.TrimSpace(expr)
	if macro, ok := cronMacros[strings.ToLower(expr)]; ok {
		expr = macro
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var masks [5]uint64
	for i, f := range fields {
		b := cronBounds[i]
		m, err := parseField(f, b.lo, b.hi)
		if err != nil {
			return schedule{}, fmt.Errorf("%s field: %w", b.name, err)
		}
		masks[i] = m
	}
	if masks[4]&(1<<7) != 0 {
		masks[4] |= 1
	}

	return schedule{
		minute: masks[0],
		hour:   masks[1],
		dom:    masks[2],
		month:  masks[3],
		dow:    masks[4],
		domAny: fields[2] == "*",
		dowAny: fields[4] == "*",
	}, nil
}

// parseField turns one field ("*", "5", "1,15", "9-17", "*/15", "0-30/10")
// into a bitmask of values within [lo, hi].
func parseField(field string, lo, hi int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		span, stepText, stepped := strings.Cut(part, "/")
		step := 1
		if stepped {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step in %q", part)
			}
			step = n
		}

		from, to := lo, hi
		if span != "*" {
			first, last, ranged := strings.Cut(span, "-")
			var err error
			if from, err = strconv.Atoi(first); err != nil {
				return 0, fmt.Errorf("invalid value in %q", part)
			}
			switch {
			case ranged:
				if to, err = strconv.Atoi(last); err != nil {
					return 0, fmt.Errorf("invalid value in %q", part)
				}
			case !stepped:
				to = from
			}
		}
		if from < lo || to > hi || from > to {
			return 0, fmt.Errorf("%q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			mask |= 1 << uint(v)
		}
	}
	return mask, nil
}

func has(mask uint64, v int) bool { return mask&(1<<uint(v)) != 0 }

func (s schedule) dayMatches(t time.Time) bool {
	dom, dow := has(s.dom, t.Day()), has(s.dow, int(t.Weekday()))
	if s.domAny || s.dowAny {
		return dom && dow
	}
	return dom || dow
}

// next returns the first whole minute strictly after t that the schedule
// admits. Mismatched months, days and hours are skipped whole. ok is false
// when nothing matches within five years, e.g. for February 31st.
func (s schedule) next(t time.Time) (time.Time, bool) {
	loc := t.Location()
	c := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for c.Before(limit) {
		switch {
		case !has(s.month, int(c.Month())):
			c = time.Date(c.Year(), c.Month()+1, 1, 0, 0, 0, 0, loc)
		case !s.dayMatches(c):
			c = time.Date(c.Year(), c.Month(), c.Day()+1, 0, 0, 0, 0, loc)
		case !has(s.hour, c.Hour()):
			c = c.Truncate(time.Hour).Add(time.Hour)
		case !has(s.minute, c.Minute()):
			c = c.Add(time.Minute)
		default:
			return c, true
		}
	}
	return time.Time{}, false
}
