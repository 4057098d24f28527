// Package scheduler drives the tick-based control loop: refreshing forecast
// providers on their own cadence, reading the inverter, evaluating the
// decision engine, writing the result back to the inverter, and publishing
// status — always in that order, so a decision is never made against a
// stale inverter read from a previous tick.
package scheduler

import (
	"context"
	"log"
	"time"
)

// PeriodicTask runs runFunc on a fixed interval, waiting out an optional
// initial delay first so multiple tasks with different periods land on
// clean wall-clock boundaries instead of all starting at process-launch
// time.
type PeriodicTask struct {
	Name         string
	InitialDelay time.Duration
	Interval     time.Duration
	RunFunc      func(ctx context.Context)
}

// run executes the periodic task in a loop, respecting the initial delay,
// context cancellation, and an external stop signal.
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.InitialDelay > 0 {
		logger.Printf("[%s] waiting initial delay: %v", pt.Name, pt.InitialDelay)
		select {
		case <-time.After(pt.InitialDelay):
			pt.RunFunc(ctx)
		case <-ctx.Done():
			logger.Printf("[%s] stopped during initial delay", pt.Name)
			return
		case <-stopChan:
			logger.Printf("[%s] stopped during initial delay", pt.Name)
			return
		}
	} else {
		pt.RunFunc(ctx)
	}

	ticker := time.NewTicker(pt.Interval)
	defer ticker.Stop()

	logger.Printf("[%s] started with interval %v", pt.Name, pt.Interval)

	for {
		select {
		case <-ticker.C:
			pt.RunFunc(ctx)
		case <-ctx.Done():
			logger.Printf("[%s] stopped due to context cancellation", pt.Name)
			return
		case <-stopChan:
			logger.Printf("[%s] stopped due to stop signal", pt.Name)
			return
		}
	}
}

// getInitialDelay returns the wait until the next wall-clock boundary that
// is a multiple of delayInterval past the top of the current hour.
func getInitialDelay(now time.Time, delayInterval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay -= delayInterval
	}
	return -delay
}
