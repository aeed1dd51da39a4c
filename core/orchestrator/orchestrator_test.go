package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mtkallio/spotcharge/core/market"
	"github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/core/plan"
	"github.com/mtkallio/spotcharge/infra/logger"
)

var testDay = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func hourlyDay(prices []float64) []market.PriceInterval {
	out := make([]market.PriceInterval, len(prices))
	for i, p := range prices {
		out[i] = market.PriceInterval{Start: testDay.Add(time.Duration(i) * time.Hour), Duration: time.Hour, Price: p}
	}
	return out
}

func cheapAt(hours ...int) []float64 {
	prices := make([]float64, 24)
	for i := range prices {
		prices[i] = 9
	}
	for _, h := range hours {
		prices[h] = 1
	}
	return prices
}

type fakeProvider struct {
	intervals []market.PriceInterval
	err       error
}

func (f fakeProvider) Fetch(context.Context, time.Time, string) ([]market.PriceInterval, error) {
	return f.intervals, f.err
}

type fakeController struct {
	starts     []plan.Block
	stops      []plan.Block
	startCalls map[time.Time]int
	// failStarts counts down remaining start rejections per block start.
	failStarts map[time.Time]int
}

func newFakeController() *fakeController {
	return &fakeController{
		startCalls: make(map[time.Time]int),
		failStarts: make(map[time.Time]int),
	}
}

func (c *fakeController) StartCharging(_ context.Context, b plan.Block) error {
	c.startCalls[b.Start]++
	if c.failStarts[b.Start] > 0 {
		c.failStarts[b.Start]--
		return errors.New("rejected")
	}
	c.starts = append(c.starts, b)
	return nil
}

func (c *fakeController) StopCharging(_ context.Context, b plan.Block) error {
	c.stops = append(c.stops, b)
	return nil
}

type fakeMailer struct {
	subject string
	body    string
	sent    int
	err     error
}

func (m *fakeMailer) Send(_ context.Context, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.subject = subject
	m.body = body
	m.sent++
	return nil
}

func newOrchestrator(t *testing.T, p PriceProvider, c Controller, m Mailer, retries int) *Orchestrator {
	t.Helper()
	o, err := New(p, c, m, metrics.NopSink{}, logger.NopLogger{}, retries)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestRunHappyPath(t *testing.T) {
	ctrl := newFakeController()
	mailer := &fakeMailer{}
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(2, 3))}, ctrl, mailer, 0)

	res, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: 2 * time.Hour})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.Schedule.Underfunded {
		t.Fatal("schedule should be fully funded")
	}
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	// Hours 2 and 3 merge into one block, so one start and one stop.
	if len(ctrl.starts) != 1 || len(ctrl.stops) != 1 {
		t.Fatalf("expected 1 start and 1 stop, got %d/%d", len(ctrl.starts), len(ctrl.stops))
	}
	if !ctrl.starts[0].Start.Equal(testDay.Add(2 * time.Hour)) {
		t.Fatalf("unexpected block start %v", ctrl.starts[0].Start)
	}
	if mailer.sent != 1 {
		t.Fatalf("expected one mail, got %d", mailer.sent)
	}
	if !strings.Contains(mailer.body, "Charging plan for 2025-01-02") {
		t.Fatalf("unexpected mail body:\n%s", mailer.body)
	}
	if !strings.Contains(mailer.subject, "2025-01-02 (FI)") {
		t.Fatalf("unexpected subject %q", mailer.subject)
	}
}

func TestRunChronologicalCommands(t *testing.T) {
	ctrl := newFakeController()
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(20, 2, 11))}, ctrl, &fakeMailer{}, 0)

	_, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: 3 * time.Hour})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(ctrl.starts) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(ctrl.starts))
	}
	for i := 1; i < len(ctrl.starts); i++ {
		if !ctrl.starts[i].Start.After(ctrl.starts[i-1].Start) {
			t.Fatalf("starts not chronological: %v", ctrl.starts)
		}
	}
}

func TestRunFetchFailed(t *testing.T) {
	o := newOrchestrator(t, fakeProvider{err: errors.New("boom")}, newFakeController(), &fakeMailer{}, 0)
	res, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: time.Hour})
	if !errors.Is(err, ErrPriceFetchFailed) {
		t.Fatalf("expected ErrPriceFetchFailed, got %v", err)
	}
	if res != nil {
		t.Fatal("no result expected on fetch failure")
	}
}

func TestRunMalformedSeries(t *testing.T) {
	raw := hourlyDay(cheapAt(2))
	raw = append(raw[:5], raw[6:]...)
	mailer := &fakeMailer{}
	o := newOrchestrator(t, fakeProvider{intervals: raw}, newFakeController(), mailer, 0)
	_, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: time.Hour})
	if !errors.Is(err, market.ErrMalformedPriceData) {
		t.Fatalf("expected ErrMalformedPriceData, got %v", err)
	}
	if mailer.sent != 0 {
		t.Fatal("no mail expected on malformed data")
	}
}

func TestRunWindowEmpty(t *testing.T) {
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(2))}, newFakeController(), &fakeMailer{}, 0)
	at := testDay.Add(10 * time.Hour)
	_, err := o.Run(context.Background(), testDay, "FI",
		plan.Constraints{SessionDuration: time.Hour, EarliestStart: at, Deadline: at})
	if !errors.Is(err, plan.ErrWindowEmpty) {
		t.Fatalf("expected ErrWindowEmpty, got %v", err)
	}
}

func TestRunCommandFailureDoesNotCascade(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failStarts[testDay.Add(2*time.Hour)] = 100
	mailer := &fakeMailer{}
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(2, 20))}, ctrl, mailer, 0)

	res, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: 2 * time.Hour})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", res.Failures)
	}
	if res.Failures[0].Command != "start" {
		t.Fatalf("unexpected failed command %q", res.Failures[0].Command)
	}
	// The second block is still attempted.
	if len(ctrl.starts) != 1 || !ctrl.starts[0].Start.Equal(testDay.Add(20*time.Hour)) {
		t.Fatalf("remaining block not attempted: %v", ctrl.starts)
	}
	// The report still goes out and carries the failure.
	if mailer.sent != 1 {
		t.Fatal("report mail should be sent despite command failures")
	}
	if !strings.Contains(mailer.body, "Charger command failures:") {
		t.Fatalf("failures missing from report:\n%s", mailer.body)
	}
}

func TestRunRetryDoesNotReissueSucceeded(t *testing.T) {
	ctrl := newFakeController()
	b0 := testDay.Add(2 * time.Hour)
	b1 := testDay.Add(20 * time.Hour)
	ctrl.failStarts[b0] = 1
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(2, 20))}, ctrl, &fakeMailer{}, 1)

	res, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: 2 * time.Hour})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("retry should have cleared failures: %v", res.Failures)
	}
	if got := ctrl.startCalls[b0]; got != 2 {
		t.Fatalf("failed block started %d times, want 2", got)
	}
	if got := ctrl.startCalls[b1]; got != 1 {
		t.Fatalf("succeeded block must not be re-issued, started %d times", got)
	}
}

func TestRunMailFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("relay down")}
	ctrl := newFakeController()
	o := newOrchestrator(t, fakeProvider{intervals: hourlyDay(cheapAt(2))}, ctrl, mailer, 0)

	res, err := o.Run(context.Background(), testDay, "FI", plan.Constraints{SessionDuration: time.Hour})
	if !errors.Is(err, ErrReportSendFailed) {
		t.Fatalf("expected ErrReportSendFailed, got %v", err)
	}
	// Charging side effects stand and the result is still returned.
	if res == nil || len(ctrl.starts) != 1 {
		t.Fatal("charging commands should have been issued before the mail failure")
	}
}
