package summary

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ent0n29/healthlog/internal/records"
)

// ChartPoint is one day of derived metrics. Nil metrics mean "no data", which
// is distinct from a zero value.
type ChartPoint struct {
	DayKey      DayKey   `json:"day_key"`
	DayLabel    string   `json:"day_label"`
	PainAverage *float64 `json:"pain_average"`
	BowelCount  *int     `json:"bowel_count"`
}

// SummaryDay lists one day's records newest first.
type SummaryDay struct {
	DisplayDate string           `json:"display_date"`
	DayKey      DayKey           `json:"day_key"`
	Entries     []records.Record `json:"entries"`
}

type Result struct {
	ChartSeries []ChartPoint `json:"chart_series"`
	Summary     []SummaryDay `json:"summary"`
	Stats       Stats        `json:"-"`
}

type Stats struct {
	Bucketed      int
	OutsideWindow int
}

type entry struct {
	record records.Record
	at     time.Time
}

// Buckets maps an in-window day to its records, all kinds interleaved.
type Buckets map[DayKey][]entry

// Bucket assigns every record to its calendar day and drops days outside w.
// It fails fast on the first record with an unparseable createdDate.
func Bucket(w Window, all []records.Record) (Buckets, Stats, error) {
	loc := w.Location()
	buckets := make(Buckets, WindowDays)
	var stats Stats
	for _, r := range all {
		at, err := r.CreatedAt(loc)
		if err != nil {
			return nil, Stats{}, err
		}
		key := DayKeyOf(at, loc)
		if !w.Contains(key) {
			stats.OutsideWindow++
			continue
		}
		buckets[key] = append(buckets[key], entry{record: r, at: at})
		stats.Bucketed++
	}
	return buckets, stats, nil
}

// Records returns the records bucketed under k, in bucketing order.
func (b Buckets) Records(k DayKey) []records.Record {
	entries := b[k]
	out := make([]records.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record)
	}
	return out
}

// Aggregate builds the dense chart series and the sparse day summary for c.
func Aggregate(w Window, c records.Collection) (Result, error) {
	buckets, stats, err := Bucket(w, c.All())
	if err != nil {
		return Result{}, err
	}
	chart, err := chartSeries(w, buckets)
	if err != nil {
		return Result{}, err
	}
	days, err := summarize(w, buckets)
	if err != nil {
		return Result{}, err
	}
	return Result{ChartSeries: chart, Summary: days, Stats: stats}, nil
}

func chartSeries(w Window, buckets Buckets) ([]ChartPoint, error) {
	loc := w.Location()
	out := make([]ChartPoint, 0, WindowDays)
	for _, key := range w.Ascending() {
		day, err := key.Date(loc)
		if err != nil {
			return nil, fmt.Errorf("parse day key %q: %w", key, err)
		}
		point := ChartPoint{DayKey: key, DayLabel: day.Format("Mon")}

		var (
			painSum   float64
			painCount int
			bowel     int
		)
		for _, e := range buckets[key] {
			switch e.record.Kind {
			case records.KindPain:
				if score, ok := e.record.PainScore(); ok {
					painSum += score
					painCount++
				}
			case records.KindBowel:
				bowel++
			}
		}
		if painCount > 0 {
			avg := painSum / float64(painCount)
			point.PainAverage = &avg
		}
		if bowel > 0 {
			point.BowelCount = &bowel
		}
		out = append(out, point)
	}
	return out, nil
}

func summarize(w Window, buckets Buckets) ([]SummaryDay, error) {
	loc := w.Location()
	out := make([]SummaryDay, 0, len(buckets))
	for _, key := range w.Descending() {
		entries := buckets[key]
		if len(entries) == 0 {
			continue
		}
		day, err := key.Date(loc)
		if err != nil {
			return nil, fmt.Errorf("parse day key %q: %w", key, err)
		}

		sorted := make([]entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].at.After(sorted[j].at)
		})
		recs := make([]records.Record, 0, len(sorted))
		for _, e := range sorted {
			recs = append(recs, e.record)
		}

		out = append(out, SummaryDay{
			DisplayDate: DisplayDate(day),
			DayKey:      key,
			Entries:     recs,
		})
	}
	return out, nil
}

// DisplayDate renders a long human date such as "Sunday 10th March 2024".
func DisplayDate(day time.Time) string {
	return fmt.Sprintf("%s %s %s", day.Format("Monday"), humanize.Ordinal(day.Day()), day.Format("January 2006"))
}
