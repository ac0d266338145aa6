package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a pipeline on a cron spec (with seconds field). A tick that
// fires while the previous run is still going is skipped, so a symbol never
// has two runs in flight from one process.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	log      *slog.Logger

	// OnRun, if set, receives every run's outcome.
	OnRun func(Report, error)
}

// NewScheduler registers pipeline under spec.
func NewScheduler(ctx context.Context, spec string, pipeline *Pipeline, log *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		pipeline: pipeline,
		log:      log,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("register ingest schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.pipeline.Run(ctx)
	if s.OnRun != nil {
		s.OnRun(rep, err)
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("ingest scheduler started")
}

// Stop stops scheduling and waits for a running ingestion to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("ingest scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
