package engine

import (
	"fmt"
	"time"
)

// Clock supplies the current time in the fleet's zone.
type Clock interface {
	Now() time.Time
}

// ZoneClock reads the wall clock and converts it to a fixed zone.
type ZoneClock struct {
	loc *time.Location
}

func NewZoneClock(loc *time.Location) *ZoneClock {
	return &ZoneClock{loc: loc}
}

// LoadZoneClock resolves an IANA zone name such as "Asia/Jakarta".
func LoadZoneClock(name string) (*ZoneClock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return NewZoneClock(loc), nil
}

func (c *ZoneClock) Now() time.Time { return time.Now().In(c.loc) }

func (c *ZoneClock) Location() *time.Location { return c.loc }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// DateString formats t as YYYY-MM-DD in its own zone.
func DateString(t time.Time) string {
	return t.Format(time.DateOnly)
}

// StartOfDay returns midnight of t's calendar day in t's zone.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
