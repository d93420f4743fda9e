package jobs

import (
	"context"
	"log/slog"
	"time"

	"coachbook/internal/service"
)

// SweepJob runs the auto-resolution pass on a timer. One pass also runs at
// startup so a worker that was down over the boundary catches up immediately.
type SweepJob struct {
	svc      *service.BookingService
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(svc *service.BookingService, interval time.Duration) *SweepJob {
	return &SweepJob{
		svc:      svc,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	slog.Info("Starting auto-resolution sweep", "interval", j.interval)

	go func() {
		j.run()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.run()
			case <-j.done:
				return
			}
		}
	}()
}

func (j *SweepJob) Stop() {
	close(j.done)
	slog.Info("Stopped auto-resolution sweep")
}

func (j *SweepJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := j.svc.Sweep(ctx)
	if err != nil {
		slog.Error("Sweep pass failed", "error", err)
		return
	}
	slog.Info("Sweep pass finished",
		"expired_unpaid", report.ExpiredUnpaid,
		"force_confirmed", report.ForceConfirmed,
		"group_settled", report.GroupSettled,
		"failures", report.Failures)
}
