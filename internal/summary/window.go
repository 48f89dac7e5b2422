package summary

import (
	"time"
)

// WindowDays is the length of the trailing window, today included.
const WindowDays = 7

const dayKeyLayout = "2006-01-02"

// DayKey identifies one calendar day (yyyy-MM-dd) in the reference location.
type DayKey string

// DayKeyOf truncates t to its calendar day in loc.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(orUTC(loc)).Format(dayKeyLayout))
}

// Date returns midnight of the day in loc.
func (k DayKey) Date(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, string(k), orUTC(loc))
}

// Window is the trailing span of calendar days ending on the anchor's day.
type Window struct {
	loc  *time.Location
	days []DayKey // oldest first
	set  map[DayKey]struct{}
}

// NewWindow computes the WindowDays keys for [now-6d, now] in loc.
func NewWindow(now time.Time, loc *time.Location) Window {
	loc = orUTC(loc)
	y, m, d := now.In(loc).Date()
	w := Window{
		loc:  loc,
		days: make([]DayKey, 0, WindowDays),
		set:  make(map[DayKey]struct{}, WindowDays),
	}
	for i := WindowDays - 1; i >= 0; i-- {
		// time.Date normalizes day underflow across month and year boundaries.
		k := DayKey(time.Date(y, m, d-i, 12, 0, 0, 0, loc).Format(dayKeyLayout))
		w.days = append(w.days, k)
		w.set[k] = struct{}{}
	}
	return w
}

func (w Window) Location() *time.Location { return orUTC(w.loc) }

// Ascending returns the days oldest first.
func (w Window) Ascending() []DayKey {
	out := make([]DayKey, len(w.days))
	copy(out, w.days)
	return out
}

// Descending returns the days newest first.
func (w Window) Descending() []DayKey {
	out := w.Ascending()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (w Window) Contains(k DayKey) bool {
	_, ok := w.set[k]
	return ok
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
