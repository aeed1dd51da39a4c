package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mtkallio/spotcharge/core/logger"
	"github.com/mtkallio/spotcharge/core/market"
	"github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/core/plan"
)

var (
	// ErrPriceFetchFailed wraps provider failures. The orchestrator does
	// not retry fetches; re-invoking the whole run is the deployment's
	// call.
	ErrPriceFetchFailed = errors.New("price fetch failed")
	// ErrReportSendFailed marks a run whose charging commands went out but
	// whose report mail could not be delivered.
	ErrReportSendFailed = errors.New("report delivery failed")
)

// PriceProvider supplies the raw day-ahead curve for one market day.
type PriceProvider interface {
	Fetch(ctx context.Context, day time.Time, zone string) ([]market.PriceInterval, error)
}

// Controller programs the charge point. Both commands carry the block they
// apply to so implementations can arm device-side timers; the orchestrator
// never sleeps through a charge window in-process.
type Controller interface {
	StartCharging(ctx context.Context, b plan.Block) error
	StopCharging(ctx context.Context, b plan.Block) error
}

// Mailer delivers the run report to the operator.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// NopController accepts every command without talking to a device. Used for
// plan-only runs.
type NopController struct{}

func (NopController) StartCharging(context.Context, plan.Block) error { return nil }
func (NopController) StopCharging(context.Context, plan.Block) error  { return nil }

// NopMailer drops the report silently.
type NopMailer struct{}

func (NopMailer) Send(context.Context, string, string) error { return nil }

// Orchestrator runs one plan-and-charge cycle: fetch prices, optimize,
// command the charger and mail the report.
type Orchestrator struct {
	provider   PriceProvider
	controller Controller
	mailer     Mailer
	sink       metrics.Sink
	log        logger.Logger
	cmdRetries int
}

// New wires an orchestrator. cmdRetries bounds how many extra passes are made
// over charger commands that failed; already acknowledged commands are never
// re-issued.
func New(provider PriceProvider, controller Controller, mailer Mailer, sink metrics.Sink, log logger.Logger, cmdRetries int) (*Orchestrator, error) {
	if provider == nil || controller == nil || mailer == nil || sink == nil || log == nil {
		return nil, fmt.Errorf("orchestrator: nil collaborator provided to New")
	}
	if cmdRetries < 0 {
		cmdRetries = 0
	}
	return &Orchestrator{
		provider:   provider,
		controller: controller,
		mailer:     mailer,
		sink:       sink,
		log:        log,
		cmdRetries: cmdRetries,
	}, nil
}

// RunResult carries everything a caller may want to surface after a run.
type RunResult struct {
	Series   *market.PriceSeries
	Schedule plan.Schedule
	Failures []plan.CommandFailure
	Report   string
}

// Run executes one invocation for the market day starting at local midnight
// `day`. Fetch, validation and an empty window are fatal; individual charger
// command rejections are collected and reported, never cascaded. The report
// is rendered and mailed even when some commands failed, so the operator
// always learns the outcome. A mail failure is returned to the caller but
// does not undo any charging side effects.
func (o *Orchestrator) Run(ctx context.Context, day time.Time, zone string, c plan.Constraints) (*RunResult, error) {
	raw, err := o.provider.Fetch(ctx, day, zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceFetchFailed, err)
	}
	series, err := market.Build(zone, day, raw)
	if err != nil {
		return nil, err
	}

	sched, err := plan.Select(series, c)
	if err != nil {
		return nil, err
	}
	if sched.Underfunded {
		o.log.Warnf("schedule underfunded: %s short of %s", sched.Shortfall, sched.Required)
	}
	o.log.Infof("selected %d intervals, %s total, cost %.2f",
		len(sched.Intervals), sched.TotalDuration, sched.TotalCost)

	failures := o.issueCommands(ctx, sched.Blocks())

	rec := metrics.RunRecord{
		Zone:            zone,
		Day:             day,
		Series:          series,
		Schedule:        sched,
		CommandFailures: len(failures),
	}
	if err := o.sink.RecordRun(rec); err != nil {
		o.log.Errorf("record run metrics: %v", err)
	}

	res := &RunResult{
		Series:   series,
		Schedule: sched,
		Failures: failures,
		Report:   plan.RenderReport(series, sched, failures),
	}
	subject := fmt.Sprintf("Charging plan %s (%s)", day.Format("2006-01-02"), zone)
	if sched.Underfunded {
		subject += " - underfunded"
	}
	if err := o.mailer.Send(ctx, subject, res.Report); err != nil {
		return res, fmt.Errorf("%w: %v", ErrReportSendFailed, err)
	}
	return res, nil
}

// issueCommands submits start/stop commands for each charging block in
// chronological order. A rejected command does not abort the remaining
// blocks. Failed commands are retried up to cmdRetries extra passes; blocks
// whose commands already succeeded are skipped on retry so a re-pass never
// double-issues a start.
func (o *Orchestrator) issueCommands(ctx context.Context, blocks []plan.Block) []plan.CommandFailure {
	type cmdState struct {
		started, stopped  bool
		startErr, stopErr error
	}
	states := make([]cmdState, len(blocks))

	for attempt := 0; attempt <= o.cmdRetries; attempt++ {
		pending := false
		for i, b := range blocks {
			st := &states[i]
			if !st.started {
				if err := o.controller.StartCharging(ctx, b); err != nil {
					o.log.Errorf("start charging %s: %v", b.Start.Format(time.RFC3339), err)
					st.startErr = err
					pending = true
					// Without a successful start there is nothing
					// to stop for this block.
					continue
				}
				st.started = true
				st.startErr = nil
			}
			if !st.stopped {
				if err := o.controller.StopCharging(ctx, b); err != nil {
					o.log.Errorf("stop charging %s: %v", b.End.Format(time.RFC3339), err)
					st.stopErr = err
					pending = true
					continue
				}
				st.stopped = true
				st.stopErr = nil
			}
		}
		if !pending {
			break
		}
	}

	var failures []plan.CommandFailure
	for i, st := range states {
		if !st.started {
			failures = append(failures, plan.CommandFailure{
				Start: blocks[i].Start, Command: "start", Reason: st.startErr.Error(),
			})
			continue
		}
		if !st.stopped {
			failures = append(failures, plan.CommandFailure{
				Start: blocks[i].Start, Command: "stop", Reason: st.stopErr.Error(),
			})
		}
	}
	return failures
}
