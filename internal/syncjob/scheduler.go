package syncjob

import (
	"context"
	"log"
	"time"
)

// Scheduler fires the job once per day at a fixed wall-clock time.
type Scheduler struct {
	job    *Job
	hour   int
	minute int
	now    func() time.Time
}

// NewScheduler returns a scheduler for a daily HH:MM trigger in local time.
func NewScheduler(job *Job, hour, minute int) *Scheduler {
	return &Scheduler{job: job, hour: hour, minute: minute, now: time.Now}
}

// Start launches the timer loop. It returns immediately; the loop stops when
// ctx is cancelled. Runs never overlap: the next timer is armed only after
// the previous run finished.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			next := nextRun(s.now(), s.hour, s.minute)
			log.Printf("⏰ Next usage sync at %s", next.Format(time.RFC3339))

			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.job.Run(ctx)
			}
		}
	}()
}

// nextRun returns the next occurrence of hour:minute strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
