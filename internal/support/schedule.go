package support

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// PeriodicTask is a job rerun on an interval that can change while running.
// Only the instance holding LockKey runs it.
type PeriodicTask struct {
	Name     string
	LockKey  string
	Initial  time.Duration
	Fallback time.Duration
	Updates  <-chan time.Duration
	Run      func(ctx context.Context, reason string)
}

// StartPeriodic blocks running task until ctx is cancelled.
func StartPeriodic(ctx context.Context, task PeriodicTask) {
	if ctx == nil {
		ctx = context.Background()
	}

	var interval atomic.Value
	interval.Store(task.normalize(task.Initial))

	signal := make(chan struct{}, 1)
	if task.Updates != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case next := <-task.Updates:
					interval.Store(task.normalize(next))
					select {
					case signal <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	err := RunWithLeader(ctx, task.LockKey, DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runPeriodicLoop(leaderCtx, task, &interval, signal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Periodic task stopped", "task", task.Name, "error", err)
	}
}

func (task PeriodicTask) normalize(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	if task.Fallback > 0 {
		return task.Fallback
	}
	return time.Hour
}

func runPeriodicLoop(ctx context.Context, task PeriodicTask, interval *atomic.Value, signal <-chan struct{}) {
	current := interval.Load().(time.Duration)
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	task.Run(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task.Run(ctx, "scheduled")
		case <-signal:
			next := interval.Load().(time.Duration)
			if next == current {
				continue
			}
			drainTicker(ticker)
			current = next
			ticker.Reset(current)
			log.Debug("Periodic task rescheduled", "task", task.Name, "interval", current)
		}
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}
