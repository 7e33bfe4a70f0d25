// Package cron schedules the background jobs: scrape cycles, reservation
// expiry and listing housekeeping.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Runner struct {
	cron    *cron.Cron
	log     *slog.Logger
	baseCtx context.Context
}

// New builds a runner with seconds-precision specs.
func New(log *slog.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		log:     log,
		baseCtx: baseCtx,
	}
}

// Add registers a job under a cron spec. The job receives the runner's base
// context so shutdown cancels in-flight runs.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		r.log.Debug("cron job started", slog.String("job", name))
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	r.log.Info("cron started")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("cron stopped")
}
