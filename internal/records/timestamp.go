package records

import (
	"fmt"
	"strings"
	"time"
)

// MalformedRecordError reports a record whose createdDate cannot be parsed.
type MalformedRecordError struct {
	ID          string
	Kind        Kind
	CreatedDate string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %q: unparseable createdDate %q", e.Kind, e.ID, e.CreatedDate)
}

// Zone-less layouts are interpreted in the caller's reference location.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// ParseTimestamp parses an ISO-8601 style timestamp.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// CreatedAt parses CreatedDate, failing with *MalformedRecordError.
func (r Record) CreatedAt(loc *time.Location) (time.Time, error) {
	t, err := ParseTimestamp(r.CreatedDate, loc)
	if err != nil {
		return time.Time{}, &MalformedRecordError{ID: r.ID, Kind: r.Kind, CreatedDate: r.CreatedDate}
	}
	return t, nil
}
