// Package session resolves trading-session boundaries. A session runs from
// one market open to the next; its start instant scopes alert deduplication.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OpenTime is a market-open wall-clock time in the market's local timezone.
type OpenTime struct {
	Hour   int
	Minute int
}

// ParseOpenTime parses an "HH:MM" wall-clock string.
func ParseOpenTime(s string) (OpenTime, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return OpenTime{}, fmt.Errorf("invalid open time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return OpenTime{}, fmt.Errorf("invalid open time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return OpenTime{}, fmt.Errorf("invalid open time %q: bad minute", s)
	}
	return OpenTime{Hour: hour, Minute: minute}, nil
}

func (t OpenTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Resolver computes session-start instants for a configured market.
// It holds no mutable state: identical inputs always yield identical outputs.
type Resolver struct {
	loc  *time.Location
	open OpenTime
}

// NewResolver creates a resolver for a market that opens at the given
// wall-clock time in loc. The location must come from the timezone database
// (time.LoadLocation), not a fixed offset, so DST transitions resolve
// correctly.
func NewResolver(loc *time.Location, open OpenTime) *Resolver {
	return &Resolver{loc: loc, open: open}
}

// Start returns the UTC instant at which the trading session containing now
// began. If local time is before today's open, the session began at
// yesterday's open. An instant exactly at the open belongs to the session it
// starts.
func (r *Resolver) Start(now time.Time) time.Time {
	local := now.In(r.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		r.open.Hour, r.open.Minute, 0, 0, r.loc)
	if local.Before(candidate) {
		// time.Date renormalizes the previous day's wall clock in loc,
		// so the subtraction stays correct across DST transitions.
		candidate = time.Date(local.Year(), local.Month(), local.Day()-1,
			r.open.Hour, r.open.Minute, 0, 0, r.loc)
	}
	return candidate.UTC()
}

// Location returns the market timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Open returns the configured market-open wall-clock time.
func (r *Resolver) Open() OpenTime { return r.open }
