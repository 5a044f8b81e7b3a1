package job

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gitvan/gitvan/errors"
)

// ErrInvalidCronSpec wraps parse failures so callers can classify them.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// cronParser accepts the classical 5-field form (minute, hour, day of
// month, month, day of week).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Spec is a parsed 5-field cron expression. The raw text is preserved so
// formatting a parsed spec returns the original expression.
type Spec struct {
	raw   string
	sched *cron.SpecSchedule
	loc   *time.Location
}

// ParseCron parses a 5-field cron expression in the given location.
// A nil location means UTC.
func ParseCron(expr string, loc *time.Location) (*Spec, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidCronSpec, "%q: %v", expr, err)
	}
	ss, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidCronSpec, "%q: unsupported schedule form", expr)
	}
	ss.Location = loc
	return &Spec{raw: expr, sched: ss, loc: loc}, nil
}

// String returns the original expression.
func (s *Spec) String() string { return s.raw }

// starBit marks a field given as "*" (or "?"), mirroring the parser's
// internal flag. It decides day-of-month vs day-of-week combination.
const starBit = 1 << 63

// Matches reports whether t (truncated to the minute, in the spec's
// location) satisfies every field. Day-of-month and day-of-week combine
// with OR when both are restricted, per classical cron.
func (s *Spec) Matches(t time.Time) bool {
	t = t.In(s.loc)

	if 1<<uint(t.Minute())&s.sched.Minute == 0 {
		return false
	}
	if 1<<uint(t.Hour())&s.sched.Hour == 0 {
		return false
	}
	if 1<<uint(t.Month())&s.sched.Month == 0 {
		return false
	}

	domMatch := 1<<uint(t.Day())&s.sched.Dom != 0
	dowMatch := 1<<uint(t.Weekday())&s.sched.Dow != 0
	if s.sched.Dom&starBit != 0 || s.sched.Dow&starBit != 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// Next returns the smallest minute-aligned time strictly after from that
// matches the spec. The zero time means no match within the schedule's
// horizon.
func (s *Spec) Next(from time.Time) time.Time {
	return s.sched.Next(from.In(s.loc))
}
