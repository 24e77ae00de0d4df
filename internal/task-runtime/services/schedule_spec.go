package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// specParser accepts standard 5-field cron expressions plus descriptors
// (@hourly, @daily, @every ...). TZ=/CRON_TZ= prefixes are honored by the
// parser itself.
var specParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var (
	everyMinutesRe = regexp.MustCompile(`^every\s+(\d+)\s+minutes?$`)
	everyHoursRe   = regexp.MustCompile(`^every\s+(\d+)\s+hours?$`)
	dailyAtRe      = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
)

// NormalizeSchedule maps the handful of recognized human-readable schedule
// literals onto cron expressions. Anything else is returned unchanged and
// left to the cron parser.
func NormalizeSchedule(schedule string) string {
	s := strings.ToLower(strings.TrimSpace(schedule))
	switch s {
	case "hourly":
		return "0 * * * *"
	case "daily", "midnight":
		return "0 0 * * *"
	case "weekly":
		return "0 0 * * 0"
	case "every minute":
		return "* * * * *"
	}
	if m := everyMinutesRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("*/%s * * * *", m[1])
	}
	if m := everyHoursRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("0 */%s * * *", m[1])
	}
	if m := dailyAtRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s %s * * *", m[2], m[1])
	}
	return schedule
}

// ParseSchedule resolves a trigger's schedule string (literal or cron
// expression) in the given IANA timezone (UTC when empty).
func ParseSchedule(schedule, timezone string) (cron.Schedule, error) {
	spec := NormalizeSchedule(schedule)
	if timezone == "" {
		timezone = "UTC"
	}
	if !strings.HasPrefix(spec, "@") {
		spec = "CRON_TZ=" + timezone + " " + spec
	}
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("unrecognized schedule %q: %w", schedule, err)
	}
	return sched, nil
}
