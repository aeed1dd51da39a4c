package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrMalformedPriceData is returned when provider output does not form a
// complete, contiguous market day.
var ErrMalformedPriceData = errors.New("malformed price data")

// PriceInterval is a single priced delivery slot within a market day.
type PriceInterval struct {
	Start    time.Time
	Duration time.Duration
	// Price is the day-ahead energy price for the slot, in the market's
	// currency per unit of energy. Negative prices occur.
	Price float64
}

// End returns the instant the interval stops covering.
func (p PriceInterval) End() time.Time {
	return p.Start.Add(p.Duration)
}

// PriceSeries holds the day-ahead price curve for one market day in one
// bidding zone. It is built once from provider output and read-only after.
type PriceSeries struct {
	zone      string
	dayStart  time.Time
	dayEnd    time.Time
	intervals []PriceInterval
}

// Build normalizes raw provider intervals into a validated PriceSeries.
// dayStart must be midnight of the market day in the zone's local time;
// the nominal day length is derived from it, so daylight-saving days of
// 23 or 25 hours validate correctly. Input order does not matter, but
// any gap, overlap or coverage shortfall is an ErrMalformedPriceData.
func Build(zone string, dayStart time.Time, raw []PriceInterval) (*PriceSeries, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no intervals for %s", ErrMalformedPriceData, dayStart.Format("2006-01-02"))
	}

	intervals := make([]PriceInterval, len(raw))
	copy(intervals, raw)
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	for i, ivl := range intervals {
		if ivl.Duration <= 0 {
			return nil, fmt.Errorf("%w: non-positive duration at %s", ErrMalformedPriceData, ivl.Start.Format(time.RFC3339))
		}
		if i > 0 && !ivl.Start.Equal(intervals[i-1].End()) {
			prev := intervals[i-1]
			if ivl.Start.Before(prev.End()) {
				return nil, fmt.Errorf("%w: overlapping intervals at %s", ErrMalformedPriceData, ivl.Start.Format(time.RFC3339))
			}
			return nil, fmt.Errorf("%w: gap between %s and %s", ErrMalformedPriceData,
				prev.End().Format(time.RFC3339), ivl.Start.Format(time.RFC3339))
		}
	}
	if !intervals[0].Start.Equal(dayStart) {
		return nil, fmt.Errorf("%w: coverage starts at %s, want %s", ErrMalformedPriceData,
			intervals[0].Start.Format(time.RFC3339), dayStart.Format(time.RFC3339))
	}
	if last := intervals[len(intervals)-1]; !last.End().Equal(dayEnd) {
		return nil, fmt.Errorf("%w: coverage ends at %s, want %s", ErrMalformedPriceData,
			last.End().Format(time.RFC3339), dayEnd.Format(time.RFC3339))
	}

	return &PriceSeries{zone: zone, dayStart: dayStart, dayEnd: dayEnd, intervals: intervals}, nil
}

// Zone returns the bidding zone code the series was fetched for.
func (s *PriceSeries) Zone() string { return s.zone }

// DayStart returns local midnight of the covered market day.
func (s *PriceSeries) DayStart() time.Time { return s.dayStart }

// DayEnd returns local midnight of the following day.
func (s *PriceSeries) DayEnd() time.Time { return s.dayEnd }

// Len returns the number of intervals in the series.
func (s *PriceSeries) Len() int { return len(s.intervals) }

// Intervals returns the full ascending interval sequence. Callers must not
// modify the returned slice.
func (s *PriceSeries) Intervals() []PriceInterval { return s.intervals }

// Window returns the intervals fully contained in [from, to).
func (s *PriceSeries) Window(from, to time.Time) []PriceInterval {
	var out []PriceInterval
	for _, ivl := range s.intervals {
		if !ivl.Start.Before(from) && !ivl.End().After(to) {
			out = append(out, ivl)
		}
	}
	return out
}
