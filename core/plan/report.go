package plan

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/mtkallio/spotcharge/core/market"
)

// CommandFailure records a charger command that was rejected for one charging
// block during orchestration.
type CommandFailure struct {
	Start   time.Time
	Command string
	Reason  string
}

// RenderReport formats the day's prices and the optimizer's decision into the
// operator summary. It lists every selected interval with its price and the
// running cumulative cost, compares the average selected price against the
// whole day, spells out an underfunded shortfall, and appends any charger
// command failures. Pure formatting, no side effects.
func RenderReport(series *market.PriceSeries, sched Schedule, failures []CommandFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Charging plan for %s, zone %s\n\n",
		series.DayStart().Format("2006-01-02"), series.Zone())

	fmt.Fprintf(&b, "%-16s  %8s  %8s  %10s\n", "start", "length", "price", "cum. cost")
	cum := 0.0
	for _, ivl := range sched.Intervals {
		cum += ivl.Price * ivl.Duration.Hours()
		fmt.Fprintf(&b, "%-16s  %8s  %8.2f  %10.2f\n",
			ivl.Start.Format("2006-01-02 15:04"), ivl.Duration, ivl.Price, cum)
	}
	if len(sched.Intervals) == 0 {
		b.WriteString("(no intervals selected)\n")
	}

	fmt.Fprintf(&b, "\nSelected %s of %s required\n", sched.TotalDuration, sched.Required)
	fmt.Fprintf(&b, "Total cost: %.2f (price x hours)\n", sched.TotalCost)
	fmt.Fprintf(&b, "Average selected price: %.2f\n", averagePrice(sched.Intervals))
	fmt.Fprintf(&b, "Average day price:      %.2f\n", averagePrice(series.Intervals()))

	if sched.Underfunded {
		fmt.Fprintf(&b, "\nUNDERFUNDED: selection falls short of the requirement by %s\n", sched.Shortfall)
	}

	if len(failures) > 0 {
		b.WriteString("\nCharger command failures:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  %s %s: %s\n", f.Start.Format("2006-01-02 15:04"), f.Command, f.Reason)
		}
	}
	return b.String()
}

// averagePrice is duration-weighted so mixed 15-minute and hourly slots
// compare fairly.
func averagePrice(intervals []market.PriceInterval) float64 {
	if len(intervals) == 0 {
		return 0
	}
	prices := make([]float64, len(intervals))
	weights := make([]float64, len(intervals))
	for i, ivl := range intervals {
		prices[i] = ivl.Price
		weights[i] = ivl.Duration.Hours()
	}
	return stat.Mean(prices, weights)
}
