package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"EventPoster/internal/ports"
)

// DailyScheduler fires a job once a day at a wall-clock time in a fixed location.
type DailyScheduler struct {
	hour, minute int
	loc          *time.Location
	now          func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler builds a scheduler firing at hour:minute in loc.
func NewDailyScheduler(hour, minute int, loc *time.Location) (*DailyScheduler, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, errors.New("scheduler: time of day out of range")
	}
	if loc == nil {
		loc = time.Local
	}
	return &DailyScheduler{hour: hour, minute: minute, loc: loc, now: time.Now}, nil
}

// Next returns the first trigger strictly after t.
func (d *DailyScheduler) Next(t time.Time) time.Time {
	local := t.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Start runs job at every trigger until ctx is cancelled or Stop is called.
// A job still running at the next trigger delays it rather than overlapping.
func (d *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go d.loop(ctx, job, d.stop, d.done)
	return nil
}

func (d *DailyScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	for {
		now := d.now()
		timer := time.NewTimer(d.Next(now).Sub(now))
		select {
		case t := <-timer.C:
			job(t.In(d.loc))
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts the loop and waits for a running job to return or ctx to expire.
func (d *DailyScheduler) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
