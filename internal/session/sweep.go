package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expiry sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Start runs SweepExpired on the registry's schedule until ctx is
// cancelled. A sweep still running when the next one is due is skipped.
func (r *Registry) Start(ctx context.Context) error {
	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(r.schedule, func() { r.SweepExpired() }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", r.schedule, err)
	}

	r.logger.Info("session sweep started", "schedule", r.schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("session sweep stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
