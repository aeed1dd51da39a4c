package entsoe

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/mtkallio/spotcharge/core/market"
)

// Publication_MarketDocument subset carrying the hourly or quarter-hourly
// price points.
type marketDocument struct {
	TimeSeries []struct {
		Periods []struct {
			TimeInterval struct {
				Start string `xml:"start"`
			} `xml:"timeInterval"`
			Resolution string `xml:"resolution"`
			Points     []struct {
				Position int     `xml:"position"`
				Price    float64 `xml:"price.amount"`
			} `xml:"Point"`
		} `xml:"Period"`
	} `xml:"TimeSeries"`
}

var resolutionRe = regexp.MustCompile(`^PT(\d+)M$`)

// parseDocument extracts price intervals from an A44 document. Interval start
// times are converted to loc. Duplicate delivery slots across series are
// collapsed, later series winning, matching the platform's revision order.
func parseDocument(doc []byte, loc *time.Location) ([]market.PriceInterval, error) {
	var md marketDocument
	if err := xml.Unmarshal(doc, &md); err != nil {
		return nil, fmt.Errorf("decode market document: %w", err)
	}

	byStart := make(map[time.Time]market.PriceInterval)
	for _, ts := range md.TimeSeries {
		for _, p := range ts.Periods {
			start, err := time.Parse("2006-01-02T15:04Z07:00", p.TimeInterval.Start)
			if err != nil {
				return nil, fmt.Errorf("parse period start %q: %w", p.TimeInterval.Start, err)
			}
			m := resolutionRe.FindStringSubmatch(p.Resolution)
			if m == nil {
				return nil, fmt.Errorf("unsupported resolution %q", p.Resolution)
			}
			minutes, _ := strconv.Atoi(m[1])
			res := time.Duration(minutes) * time.Minute

			for _, pt := range p.Points {
				if pt.Position < 1 {
					return nil, fmt.Errorf("invalid point position %d", pt.Position)
				}
				at := start.Add(time.Duration(pt.Position-1) * res).In(loc)
				byStart[at] = market.PriceInterval{Start: at, Duration: res, Price: pt.Price}
			}
		}
	}

	intervals := make([]market.PriceInterval, 0, len(byStart))
	for _, ivl := range byStart {
		intervals = append(intervals, ivl)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start.Before(intervals[j].Start) })
	return intervals, nil
}
