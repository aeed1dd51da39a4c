package plan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mtkallio/spotcharge/core/market"
)

// ErrWindowEmpty is returned when the allowed charging window contains no
// price intervals, which makes any schedule impossible.
var ErrWindowEmpty = errors.New("charge window contains no price intervals")

// Block is a maximal run of consecutive selected intervals.
type Block struct {
	Start time.Time
	End   time.Time
}

// Duration returns the block length.
func (b Block) Duration() time.Duration { return b.End.Sub(b.Start) }

// Schedule is the optimizer's decision: the subset of the day's intervals to
// charge in, in chronological order, with derived totals. TotalCost is the
// price-weighted duration (price x hours per interval), i.e. the cost of
// drawing one energy unit per hour; multiply by charger power for a cost
// estimate.
type Schedule struct {
	Intervals     []market.PriceInterval
	TotalCost     float64
	TotalDuration time.Duration
	Required      time.Duration
	// Underfunded marks a schedule whose selected duration falls short of
	// Required because the window ran out of eligible intervals.
	Underfunded bool
	Shortfall   time.Duration
}

// Blocks merges the selected intervals into maximal contiguous runs.
func (s Schedule) Blocks() []Block {
	var blocks []Block
	for _, ivl := range s.Intervals {
		if n := len(blocks); n > 0 && blocks[n-1].End.Equal(ivl.Start) {
			blocks[n-1].End = ivl.End()
			continue
		}
		blocks = append(blocks, Block{Start: ivl.Start, End: ivl.End()})
	}
	return blocks
}

// Select picks the cheapest set of intervals satisfying the constraints.
// Candidates inside [EarliestStart, Deadline] are taken in ascending price
// order, ties broken by earlier start, until the required duration is met.
// MaxSessions caps the number of disjoint blocks and MinContiguousBlock
// rejects picks that would leave a block shorter than the minimum. When the
// eligible candidates run out first, the partial schedule is returned with
// Underfunded set instead of an error. The result is deterministic for
// identical inputs.
func Select(series *market.PriceSeries, c Constraints) (Schedule, error) {
	required, err := c.RequiredDuration()
	if err != nil {
		return Schedule{}, err
	}

	from, to := c.EarliestStart, c.Deadline
	if from.IsZero() {
		from = series.DayStart()
	}
	if to.IsZero() {
		to = series.DayEnd()
	}
	cands := series.Window(from, to)
	if len(cands) == 0 {
		return Schedule{}, fmt.Errorf("%w: window [%s, %s)", ErrWindowEmpty,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	sel := newSelection(cands, c)
	sel.fill(required)
	return sel.schedule(required), nil
}

// selection tracks greedy state. Candidates are chronological and, because
// the series is contiguous, index adjacency is time adjacency.
type selection struct {
	cands  []market.PriceInterval
	order  []int // candidate indices, cheapest first
	picked []bool
	total  time.Duration
	c      Constraints
}

func newSelection(cands []market.PriceInterval, c Constraints) *selection {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := cands[order[a]], cands[order[b]]
		if ia.Price != ib.Price {
			return ia.Price < ib.Price
		}
		return ia.Start.Before(ib.Start)
	})
	return &selection{cands: cands, order: order, picked: make([]bool, len(cands)), c: c}
}

// fill selects candidates until the requirement is met or no further pick is
// admissible. Passes repeat because accepting an interval can make a
// previously rejected neighbour mergeable under MinContiguousBlock.
func (s *selection) fill(required time.Duration) {
	for s.total < required {
		progress := false
		for _, i := range s.order {
			if s.total >= required {
				return
			}
			if s.picked[i] || !s.admissible(i) {
				continue
			}
			s.pick(i)
			progress = true
		}
		if s.total >= required {
			return
		}
		if !progress && !s.seedBlock() {
			return
		}
	}
}

func (s *selection) pick(i int) {
	s.picked[i] = true
	s.total += s.cands[i].Duration
}

// admissible reports whether picking candidate i keeps the schedule valid
// under MaxSessions and MinContiguousBlock.
func (s *selection) admissible(i int) bool {
	if s.c.MaxSessions > 0 && s.blockCountWith(i) > s.c.MaxSessions {
		return false
	}
	if s.c.MinContiguousBlock > 0 && s.cands[i].Duration < s.c.MinContiguousBlock {
		if s.runDurationWith(i) < s.c.MinContiguousBlock {
			return false
		}
	}
	return true
}

// runDurationWith returns the duration of the contiguous picked run that
// would contain candidate i after picking it.
func (s *selection) runDurationWith(i int) time.Duration {
	d := s.cands[i].Duration
	for j := i - 1; j >= 0 && s.picked[j]; j-- {
		d += s.cands[j].Duration
	}
	for j := i + 1; j < len(s.cands) && s.picked[j]; j++ {
		d += s.cands[j].Duration
	}
	return d
}

// blockCountWith returns the number of disjoint picked blocks after
// hypothetically picking candidate i.
func (s *selection) blockCountWith(i int) int {
	count := 0
	inBlock := false
	for j := range s.cands {
		p := s.picked[j] || j == i
		if p && !inBlock {
			count++
		}
		inBlock = p
	}
	return count
}

// seedBlock bootstraps selection when MinContiguousBlock exceeds every single
// candidate's duration and nothing is picked next to: it picks the cheapest
// contiguous run of unpicked candidates long enough to satisfy the block
// minimum. Returns false when no such run exists.
func (s *selection) seedBlock() bool {
	if s.c.MinContiguousBlock <= 0 {
		return false
	}
	bestStart, bestEnd := -1, -1
	bestCost := 0.0
	for a := range s.cands {
		if s.picked[a] {
			continue
		}
		var dur time.Duration
		cost := 0.0
		for b := a; b < len(s.cands) && !s.picked[b]; b++ {
			dur += s.cands[b].Duration
			cost += s.cands[b].Price * s.cands[b].Duration.Hours()
			if dur < s.c.MinContiguousBlock {
				continue
			}
			if s.c.MaxSessions > 0 && s.blockCountWith(a) > s.c.MaxSessions {
				break
			}
			if bestStart < 0 || cost < bestCost {
				bestStart, bestEnd, bestCost = a, b, cost
			}
			break
		}
	}
	if bestStart < 0 {
		return false
	}
	for i := bestStart; i <= bestEnd; i++ {
		s.pick(i)
	}
	return true
}

func (s *selection) schedule(required time.Duration) Schedule {
	sched := Schedule{Required: required}
	for i, p := range s.picked {
		if !p {
			continue
		}
		ivl := s.cands[i]
		sched.Intervals = append(sched.Intervals, ivl)
		sched.TotalCost += ivl.Price * ivl.Duration.Hours()
		sched.TotalDuration += ivl.Duration
	}
	if sched.TotalDuration < required {
		sched.Underfunded = true
		sched.Shortfall = required - sched.TotalDuration
	}
	return sched
}
