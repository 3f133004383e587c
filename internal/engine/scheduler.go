package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"actiond/internal/domain"
	"actiond/internal/fatal"
)

// Run drives Tick with a fixed delay between the end of one pass and the next.
// Params: ctx cancels between passes only; interval is the delay.
// Returns: nil on cancellation or the fatal error that stopped a pass.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		// A pass in progress is never interrupted by shutdown.
		if err := e.Tick(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}

// Tick runs one scheduler pass.
// Params: context handed to Perform.
// Returns: fatal error only; recoverable failures are recorded per action.
func (e *Engine) Tick(ctx context.Context) error {
	started := e.clock.Now()
	entries := e.store.Snapshot()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Action.Priority() < entries[j].Action.Priority()
	})

	selected := entries[:0]
	for _, entry := range entries {
		if e.due(entry, started) {
			selected = append(selected, entry)
		}
	}

	if err := e.execute(ctx, selected); err != nil {
		e.logger.Error("scheduler pass aborted", "error", err)
		return err
	}

	e.publish(ctx)
	e.logger.Debug("scheduler pass finished", "known", len(entries), "selected", len(selected),
		"elapsed", e.clock.Now().Sub(started).String())
	return nil
}

// due reports whether entry passes the terminal-state and backoff gates.
func (e *Engine) due(entry domain.Entry, now time.Time) bool {
	if entry.Info.LastState == domain.StateSucceeded {
		return false
	}
	backoff := max(e.opts.MinRetry, time.Duration(entry.Action.RetryMinutes())*time.Minute)
	return now.Sub(entry.Info.LastChecked) >= backoff
}

// execute runs selected entries in priority order, sequentially or on the pool.
func (e *Engine) execute(ctx context.Context, selected []domain.Entry) error {
	if e.pool == nil {
		for _, entry := range selected {
			if err := e.attempt(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	}

	group := e.pool.NewGroup()
	for _, entry := range selected {
		entry := entry
		group.SubmitErr(func() error {
			return e.attempt(ctx, entry)
		})
	}
	return group.Wait()
}

// attempt checks, executes and records one action.
// Params: context and entry snapshot.
// Returns: fatal error only.
func (e *Engine) attempt(ctx context.Context, entry domain.Entry) error {
	checked := e.clock.Now()
	locations, ok := e.store.MarkChecked(entry.Identity, checked)
	if !ok {
		return nil
	}

	if e.pauses.AnyPaused(locations) {
		e.record(entry, domain.StateThrottled, false)
		return nil
	}

	state, err := e.perform(ctx, entry.Action)
	e.metrics.PerformDuration.WithLabelValues(entry.Action.Type()).Observe(e.clock.Now().Sub(checked).Seconds())
	if err != nil {
		if fatal.Is(err) {
			return fmt.Errorf("perform %s %s: %w", entry.Action.Type(), entry.Action.Key(), err)
		}
		e.metrics.PerformErrors.WithLabelValues(entry.Action.Type()).Inc()
		e.logger.Warn("action perform failed",
			"action_type", entry.Action.Type(),
			"action_key", entry.Action.Key(),
			"error", err,
		)
		e.record(entry, domain.StateUnknown, true)
		return nil
	}
	if !state.Valid() {
		e.logger.Warn("action returned unknown state",
			"action_type", entry.Action.Type(),
			"action_key", entry.Action.Key(),
			"state", string(state),
		)
		state = domain.StateUnknown
	}
	e.record(entry, state, false)
	return nil
}

// perform invokes Perform, converting panics into errors.
func (e *Engine) perform(ctx context.Context, action domain.Action) (state domain.ActionState, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		if cause, ok := recovered.(error); ok {
			if fatal.Is(cause) {
				err = cause
				return
			}
			err = fmt.Errorf("panic: %w", cause)
			return
		}
		err = fmt.Errorf("panic: %v", recovered)
	}()
	return action.Perform(ctx, domain.Services{
		HTTP:   e.opts.HTTP,
		Logger: e.logger.With("action_type", action.Type()),
		Now:    e.clock.Now,
	})
}

func (e *Engine) record(entry domain.Entry, state domain.ActionState, thrown bool) {
	previous, changed, found := e.store.Record(entry.Identity, state, thrown, e.clock.Now())
	if !found || !changed {
		return
	}
	e.metrics.Transitions.WithLabelValues(string(state)).Inc()
	e.logger.Debug("action state changed",
		"action_type", entry.Action.Type(),
		"action_key", entry.Action.Key(),
		"from", string(previous),
		"to", string(state),
	)
}

// publish updates pass-level gauges and pushes the alert snapshot.
func (e *Engine) publish(ctx context.Context) {
	oldest := make(map[domain.ActionState]time.Time)
	thrown := 0
	for _, entry := range e.store.Snapshot() {
		if entry.Info.Thrown {
			thrown++
		}
		transition := entry.Info.LastStateTransition
		if current, ok := oldest[entry.Info.LastState]; !ok || transition.Before(current) {
			oldest[entry.Info.LastState] = transition
		}
	}
	e.metrics.ObserveOldest(oldest)
	e.metrics.Thrown.Set(float64(thrown))
	e.metrics.LastRun.Set(float64(e.clock.Now().UnixNano()) / 1e9)

	snapshot := e.alerts.Refresh()
	if e.opts.Sink == nil {
		return
	}
	if err := e.opts.Sink.Publish(ctx, snapshot); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("alert snapshot publish failed", "error", err)
	}
}
