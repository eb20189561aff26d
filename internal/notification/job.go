package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/signals"
)

// SignalSource computes the current signal for a triple.
type SignalSource interface {
	Signal(ctx context.Context, req signals.Request) (model.Signal, error)
}

// Watch is one (symbol, interval, strategy) the job evaluates.
type Watch struct {
	Symbol   string         `yaml:"symbol"`
	Interval model.Interval `yaml:"interval"`
	Strategy string         `yaml:"strategy"`
}

func (w Watch) String() string { return w.Symbol + "/" + w.Interval.Code() + "/" + w.Strategy }

// Recipient receives one message per run with the signals for its
// symbols (all symbols when Symbols is empty).
type Recipient struct {
	ID      string   `yaml:"id"`
	Symbols []string `yaml:"symbols"`
}

func (r Recipient) wants(symbol string) bool {
	return len(r.Symbols) == 0 || slices.Contains(r.Symbols, symbol)
}

// JobObserver is told about every delivery attempt.
type JobObserver interface {
	NotificationSent(channel string, err error)
}

// JobConfig configures a Job.
type JobConfig struct {
	Watch      []Watch
	Recipients []Recipient
	Notifiers  []Notifier
	ClosedBars bool
	Observer   JobObserver
	Logger     *slog.Logger
}

// Job is the scheduled signal notification callback. Each Run computes the
// watch list's signals and sends every recipient one message with the
// signals it has not been sent before.
type Job struct {
	source     SignalSource
	watch      []Watch
	recipients []Recipient
	notifiers  []Notifier
	closedBars bool
	obs        JobObserver
	log        *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time // recipient|watch -> last bar notified
}

// NewJob creates a job. With no recipients a single default recipient
// receives everything.
func NewJob(source SignalSource, cfg JobConfig) *Job {
	recipients := cfg.Recipients
	if len(recipients) == 0 {
		recipients = []Recipient{{}}
	}
	return &Job{
		source:     source,
		watch:      cfg.Watch,
		recipients: recipients,
		notifiers:  cfg.Notifiers,
		closedBars: cfg.ClosedBars,
		obs:        cfg.Observer,
		log:        logger.Component(cfg.Logger, "notify-job"),
		sent:       make(map[string]time.Time),
	}
}

// Run evaluates the watch list as of now and delivers the messages.
// Signal failures are logged and skipped; delivery failures are returned
// joined after every notifier has been tried.
func (j *Job) Run(ctx context.Context, now time.Time) error {
	ctx = logger.EnsureTraceID(ctx, "notify", now)

	var fresh []model.Signal
	for _, w := range j.watch {
		sig, err := j.source.Signal(ctx, signals.Request{
			Symbol:     w.Symbol,
			Interval:   w.Interval,
			Strategy:   w.Strategy,
			AsOf:       now,
			ClosedBars: j.closedBars,
		})
		if err != nil {
			j.log.Warn("signal failed", append(logger.LogWithTrace(ctx),
				slog.String("watch", w.String()), slog.String("error", err.Error()))...)
			continue
		}
		if sig.Decision != model.DecisionNone {
			fresh = append(fresh, sig)
		}
	}

	var errs []error
	for _, r := range j.recipients {
		var batch []model.Signal
		for _, sig := range fresh {
			if r.wants(sig.Symbol) && j.markSent(r.ID, sig) {
				batch = append(batch, sig)
			}
		}
		if len(batch) == 0 {
			continue
		}
		alert := Render(r.ID, batch)
		for _, n := range j.notifiers {
			err := n.Send(ctx, alert)
			if j.obs != nil {
				j.obs.NotificationSent(n.Name(), err)
			}
			if err != nil {
				j.log.Warn("delivery failed", append(logger.LogWithTrace(ctx),
					slog.String("channel", n.Name()), slog.String("recipient", r.ID), slog.String("error", err.Error()))...)
				errs = append(errs, fmt.Errorf("%s to %q: %w", n.Name(), r.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// markSent records sig for recipient and reports whether it is new.
func (j *Job) markSent(recipient string, sig model.Signal) bool {
	key := recipient + "|" + sig.Key()
	j.mu.Lock()
	defer j.mu.Unlock()
	if last, ok := j.sent[key]; ok && !sig.Time.After(last) {
		return false
	}
	j.sent[key] = sig.Time
	return true
}

// Loop calls Run every period until ctx is done.
func (j *Job) Loop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := j.Run(ctx, now.UTC()); err != nil {
				j.log.Warn("notification run incomplete", slog.String("error", err.Error()))
			}
		}
	}
}

// Render formats signals as one alert. Strong decisions raise the level to
// warning.
func Render(recipient string, sigs []model.Signal) Alert {
	level := AlertInfo
	var b strings.Builder
	for i, s := range sigs {
		if s.Decision.Strong() {
			level = AlertWarning
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s: %s @ %.4f (SL %.4f, TP %.4f, trend %s) %s",
			s.Symbol, s.Interval.Code(), s.Strategy,
			strings.ToUpper(s.Decision.String()), s.Bar.Close,
			s.StopLoss, s.TakeProfit, s.Trend,
			s.Time.UTC().Format("2006-01-02 15:04 MST"))
	}
	title := fmt.Sprintf("%d new signal", len(sigs))
	if len(sigs) != 1 {
		title += "s"
	}
	return Alert{Level: level, Recipient: recipient, Title: title, Message: b.String()}
}
