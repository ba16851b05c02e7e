package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Passer runs one dispatch pass.
type Passer interface {
	Dispatch(ctx context.Context) (Summary, error)
}

// Runner triggers dispatch passes on a cron schedule.
type Runner struct {
	mu      sync.Mutex
	cron    *cron.Cron
	passer  Passer
	spec    string
	timeout time.Duration
	logger  *slog.Logger
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunner validates spec (standard cron syntax, optional seconds field, or
// descriptors such as "@hourly") and prepares a runner in loc.
func NewRunner(p Passer, spec string, loc *time.Location, logger *slog.Logger) (*Runner, error) {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := specParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse dispatch schedule %q: %w", spec, err)
	}

	cl := cronLogger{logger: logger}
	r := &Runner{
		passer:  p,
		spec:    spec,
		timeout: 10 * time.Minute,
		logger:  logger,
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("schedule dispatch: %w", err)
	}
	return r, nil
}

// Start begins scheduling. When runNow is set one pass runs immediately.
func (r *Runner) Start(ctx context.Context, runNow bool) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("dispatch runner started", "schedule", r.spec)
	if runNow {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run()
		}()
	}
}

// Stop halts scheduling, cancels a running pass and waits for it to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	stopped := r.cron.Stop()
	if cancel != nil {
		cancel()
	}
	<-stopped.Done()
	r.wg.Wait()
}

// Next returns the time of the next scheduled pass.
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Runner) run() {
	r.mu.Lock()
	base := r.ctx
	r.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, r.timeout)
	defer cancel()

	if _, err := r.passer.Dispatch(ctx); err != nil {
		r.logger.Error("dispatch pass failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
