package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/dataq-tools/pulseweb/internal/model"
)

// Reaper periodically removes session directories past the retention
// window. It is an explicit background task: the serve command starts it
// after the listener is up and shuts it down on context cancellation, so
// reaping never blocks, and is never blocked by, request handling.
type Reaper struct {
	scheduler gocron.Scheduler
}

// NewReaper builds the scheduler from the configured reap schedule.
// With no schedule configured the reaper fires hourly.
func NewReaper(store *Store, retention time.Duration, schedule *model.ReapSchedule) (*Reaper, error) {
	var job gocron.JobDefinition
	switch {
	case schedule == nil || (schedule.Cron == "" && schedule.Duration == ""):
		job = gocron.CronJob("@hourly", false)
	case schedule.Cron != "":
		if err := model.ParseCron(schedule.Cron); err != nil {
			return nil, fmt.Errorf("parsing storage.schedule.cron: %w", err)
		}
		job = gocron.CronJob(schedule.Cron, false)
	default:
		d, err := model.ParseISODuration(schedule.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing storage.schedule.duration: %w", err)
		}
		job = gocron.DurationJob(d)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		job,
		gocron.NewTask(func() {
			ctx := context.Background()
			reaped := store.Reap(ctx, time.Now(), retention)
			if reaped > 0 {
				slog.InfoContext(ctx, "reap pass finished", "reaped", reaped)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing reap job: %w", err)
	}

	return &Reaper{scheduler: scheduler}, nil
}

func (r *Reaper) Start() {
	r.scheduler.Start()
}

func (r *Reaper) Shutdown() error {
	return r.scheduler.Shutdown()
}
