package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is the shared reliability state of one wrapped client.
type State int32

const (
	Connected State = iota
	Reconnecting
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "reconnecting"
}

// resendTick is the fixed interval on which the resender loop re-attempts
// every pending action, per the Retry Engine's design ("every three
// seconds, configurable; fixed in this design").
const resendTick = 3 * time.Second

// action is one deferred call awaiting resend. attempt returns nil once it
// has delivered a value on its own result channel; classify turns a
// non-nil error into Transient (keep retrying) or Permanent (deliver now).
type action struct {
	attempt  func(context.Context) error
	classify func(error) Disposition
	done     chan error
}

// Engine is the generic supervisor wrapping one reliable client (Queue, KV,
// or Blob). It is safe for concurrent use by multiple goroutines issuing
// calls through Do.
type Engine struct {
	name  string
	log   *slog.Logger
	state atomic.Int32

	mailbox chan *action

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts an Engine named for logging (e.g. "queue", "kv", "blob") and
// spawns its background resender loop. Callers must call Close when done.
func New(name string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		name:    name,
		log:     log,
		mailbox: make(chan *action, 1000),
		closed:  make(chan struct{}),
	}
	go e.resenderLoop()
	return e
}

// Close stops the resender loop. Any actions still pending receive
// context.Canceled.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

// State reports the engine's current reliability state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Do executes fn, classifying its error with classify. On a Transient
// failure the call is deferred onto the resender mailbox and Do blocks
// (respecting ctx) until the resend loop resolves it. On a Permanent
// failure or success, Do returns immediately.
func Do[T any](ctx context.Context, e *Engine, classify func(error) Disposition, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if e.State() == Connected {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if classify(err) == Permanent {
			return zero, err
		}
		e.state.Store(int32(Reconnecting))
		e.log.Warn("retry engine: connection lost, deferring call",
			slog.String("engine", e.name), slog.Any("err", err))
	}

	resultCh := make(chan T, 1)
	act := &action{
		attempt: func(ctx context.Context) error {
			val, err := fn(ctx)
			if err != nil {
				return err
			}
			resultCh <- val
			return nil
		},
		classify: classify,
		done:     make(chan error, 1),
	}

	select {
	case e.mailbox <- act:
	case <-e.closed:
		return zero, fmt.Errorf("retry engine %s: closed", e.name)
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case err := <-act.done:
		if err != nil {
			return zero, err
		}
		return <-resultCh, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// resenderLoop pops newly deferred actions into a pending list and
// re-attempts the whole list every resendTick, in FIFO order, until each
// either succeeds or fails permanently.
func (e *Engine) resenderLoop() {
	var pending []*action

	tick := backoff.NewExponentialBackOff()
	tick.InitialInterval = resendTick
	tick.MaxInterval = resendTick
	tick.Multiplier = 1
	tick.RandomizationFactor = 0.1

	timer := time.NewTimer(nextTick(tick))
	defer timer.Stop()

	for {
		select {
		case <-e.closed:
			for _, act := range pending {
				act.done <- context.Canceled
			}
			return
		case act, ok := <-e.mailbox:
			if !ok {
				return
			}
			pending = append(pending, act)
		case <-timer.C:
			pending = e.resendPending(pending)
			timer.Reset(nextTick(tick))
		}
	}
}

func nextTick(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return resendTick
	}
	return d
}

// resendPending re-attempts every pending action once, in order, keeping
// only those whose failure classifies as Transient. A pivot index compacts
// survivors in place, mirroring resend_pending_actions.
func (e *Engine) resendPending(pending []*action) []*action {
	pivot := 0
	for _, act := range pending {
		err := act.attempt(context.Background())
		switch {
		case err == nil:
			e.state.Store(int32(Connected))
			act.done <- nil
		case act.classify(err) == Permanent:
			act.done <- err
		default:
			pending[pivot] = act
			pivot++
		}
	}
	return pending[:pivot]
}
