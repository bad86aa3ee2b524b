package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRunLayout is the format used when a next run is shown to users.
const NextRunLayout = "2006-01-02 15:04:05"

// CannotCompute is shown instead of a next run time when the trigger is invalid.
const CannotCompute = "cannot compute"

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronValidation is the parse-only answer used for interactive feedback.
type CronValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ParseCron accepts 5-field expressions and 6-field expressions with a leading seconds field.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &ValidationError{Field: "cron expression", Message: "expression is empty"}
	}
	if strings.HasPrefix(expr, "@") {
		return nil, &ValidationError{Field: "cron expression", Message: "descriptors are not supported, use 5 or 6 fields"}
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, &ValidationError{Field: "cron expression", Message: err.Error()}
	}
	return schedule, nil
}

// ValidateCron parses the expression without computing a run.
func ValidateCron(expr string) CronValidation {
	if _, err := ParseCron(expr); err != nil {
		return CronValidation{Valid: false, Error: err.Error()}
	}
	return CronValidation{Valid: true}
}

// NextOccurrences returns the next n execution times from a base time.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times
}

// NextRun returns the next instant the trigger fires relative to now.
// Cron triggers fire strictly after now. Fixed-time triggers fire today if
// today's occurrence is still ahead, otherwise they roll forward by period.
func NextRun(trigger Trigger, now time.Time) (time.Time, error) {
	switch trigger.Mode {
	case TriggerCron:
		schedule, err := ParseCron(trigger.Cron)
		if err != nil {
			return time.Time{}, err
		}
		next := schedule.Next(now)
		if next.IsZero() {
			return time.Time{}, &ValidationError{Field: "cron expression", Message: "expression never fires"}
		}
		return next, nil
	case TriggerFixedTime:
		if trigger.FixedTime == nil {
			return time.Time{}, &ValidationError{Field: "fixed time", Message: "fixedTimeConfig is required"}
		}
		return nextFixedTime(*trigger.FixedTime, now)
	default:
		return time.Time{}, &ValidationError{Field: "trigger mode", Message: fmt.Sprintf("unknown mode %q", trigger.Mode)}
	}
}

// FormatNextRun renders the next run for display.
func FormatNextRun(trigger Trigger, now time.Time) string {
	next, err := NextRun(trigger, now)
	if err != nil {
		return CannotCompute
	}
	return next.Format(NextRunLayout)
}

func nextFixedTime(cfg FixedTimeConfig, now time.Time) (time.Time, error) {
	hour, minute, err := parseHHMM(cfg.Time)
	if err != nil {
		return time.Time{}, err
	}
	loc := now.Location()
	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if next.After(now) {
		return next, nil
	}

	switch cfg.Period {
	case PeriodDaily:
		return next.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		if cfg.WeekDay == nil {
			return next.AddDate(0, 0, 1), nil
		}
		if *cfg.WeekDay < 0 || *cfg.WeekDay > 6 {
			return time.Time{}, &ValidationError{Field: "weekDay", Message: fmt.Sprintf("%d is outside 0-6", *cfg.WeekDay)}
		}
		delta := *cfg.WeekDay - int(next.Weekday())
		if delta <= 0 {
			delta += 7
		}
		return next.AddDate(0, 0, delta), nil
	case PeriodMonthly:
		if cfg.MonthDay == nil {
			return next.AddDate(0, 1, 0), nil
		}
		day := *cfg.MonthDay
		if day < 1 || day > 31 {
			return time.Time{}, &ValidationError{Field: "monthDay", Message: fmt.Sprintf("%d is outside 1-31", day)}
		}
		// Advance the month first and set the day on the normalised month,
		// so Jan 31 rolls to Mar 31 rather than Mar 3.
		base := next
		if day <= d {
			base = next.AddDate(0, 1, 0)
		}
		by, bm, _ := base.Date()
		return time.Date(by, bm, day, hour, minute, 0, 0, loc), nil
	default:
		return time.Time{}, &ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", cfg.Period)}
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, &ValidationError{Field: "time", Message: fmt.Sprintf("%q is not HH:MM", s)}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid hour in %q", s)}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid minute in %q", s)}
	}
	return h, m, nil
}
