package capabilities

import (
	"fmt"
	"time"
)

// newClockHandle exposes time and timezone utilities to tasks declaring
// "clock". Always available.
func newClockHandle() Handle {
	return Handle{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"unix": func() int64 {
			return time.Now().Unix()
		},
		"nowIn": func(tz string) (string, error) {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("clock: unknown timezone %q", tz)
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
		"parse": func(value string) (int64, error) {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return 0, fmt.Errorf("clock: cannot parse %q as RFC3339", value)
			}
			return t.Unix(), nil
		},
	}
}
