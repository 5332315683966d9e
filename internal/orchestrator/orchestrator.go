// Package orchestrator serializes pool actions through the execution
// boundary: one submission in flight at a time, bounded retries for
// communication failures, and a fresh state read after every confirmation.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/metrics"
)

var log = logrus.WithField("component", "orchestrator")

// Observer is notified after every confirmed-applied outcome, in worker
// order. Callbacks run on the worker goroutine and must return quickly.
type Observer interface {
	OnOutcome(ActionOutcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ActionOutcome)

func (f ObserverFunc) OnOutcome(o ActionOutcome) { f(o) }

// Config tunes the retry and confirmation behavior.
type Config struct {
	// MaxAttempts caps submissions per request. Default 3.
	MaxAttempts int
	// ConfirmTimeout bounds one wait for a receipt. Default 90s.
	ConfirmTimeout time.Duration
	// RetryBase / RetryMax shape the exponential backoff between attempts.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 90 * time.Second
	}
	return c
}

// Orchestrator owns the write path. All mutating requests funnel through
// its queue and a single worker goroutine, so submissions reach the
// execution environment strictly one at a time.
type Orchestrator struct {
	backend chain.Backend
	cfg     Config

	queue chan queued

	mu        sync.RWMutex
	observers []Observer

	now func() time.Time
}

type queued struct {
	ctx    context.Context
	req    ActionRequest
	result chan result
}

type result struct {
	outcome *ActionOutcome
	err     error
}

// New builds an orchestrator over backend. Call Start before Execute.
func New(backend chain.Backend, cfg Config) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		cfg:     cfg.withDefaults(),
		queue:   make(chan queued, 64),
		now:     time.Now,
	}
}

// Subscribe registers an observer for confirmed outcomes.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Start launches the worker loop. It stops when ctx ends; queued requests
// that never ran fail with ctx's error.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				o.drain(ctx.Err())
				return
			case q := <-o.queue:
				q.result <- o.process(q.ctx, q.req)
			}
		}
	}()
}

func (o *Orchestrator) drain(err error) {
	for {
		select {
		case q := <-o.queue:
			q.result <- result{err: &OrchestrationError{Class: ClassTransient, Err: err}}
		default:
			return
		}
	}
}

// Execute runs one action to its terminal outcome.
//
// A nil error with Outcome.Pending set means the disposition is unknown:
// the request may still be applied, and no local state was assumed. A
// caller that cancels ctx mid-flight only stops its own waiting; the
// worker finishes the attempt and observers still hear the outcome.
func (o *Orchestrator) Execute(ctx context.Context, req ActionRequest) (*ActionOutcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	q := queued{ctx: ctx, req: req, result: make(chan result, 1)}
	select {
	case o.queue <- q:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-q.result:
		return res.outcome, res.err
	case <-ctx.Done():
		return &ActionOutcome{Kind: req.Kind, Caller: req.Caller, Pending: true}, nil
	}
}

// process drives one request through submit, wait and the post-confirmation
// read. It runs on the worker goroutine only.
func (o *Orchestrator) process(ctx context.Context, req ActionRequest) result {
	reqLog := log.WithFields(logrus.Fields{"kind": req.Kind, "caller": req.Caller.Hex()})

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, o.cfg.RetryBase, o.cfg.RetryMax)
			reqLog.WithField("attempt", attempt+1).Infof("retrying after %s", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return o.pending(req)
			}
		}

		// A fresh Call per attempt: the previous one may still be in
		// flight somewhere, and it must never be submittable twice.
		call := req.toCall()
		ref, err := o.backend.Submit(ctx, call)
		if err != nil {
			oe := classify(err)
			switch oe.Class {
			case ClassTransient:
				metrics.SubmitRetries.Add(1)
				reqLog.Warnf("submission attempt %d failed: %v", attempt+1, err)
				continue
			default:
				reqLog.WithField("class", oe.Class.String()).Errorf("submission refused: %v", err)
				return result{err: oe}
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, o.cfg.ConfirmTimeout)
		rcpt, err := o.backend.Wait(waitCtx, ref)
		cancel()
		if err != nil {
			// The submission is out there; retrying would risk a double
			// apply and giving up would lie. Report the open disposition
			// with the ref so the submission can still be traced.
			reqLog.WithField("ref", ref.Hex()).Warnf("confirmation wait ended: %v", err)
			res := o.pending(req)
			res.outcome.ConfirmationRef = ref
			return res
		}

		if rcpt.Status == chain.StatusReverted {
			metrics.ActionsRejected.Add(1)
			reqLog.WithField("reason", rcpt.RevertReason).Info("rejected by the pool")
			return result{err: &OrchestrationError{
				Class: ClassValidation,
				Err:   fmt.Errorf("rejected: %s", rcpt.RevertReason),
			}}
		}

		outcome, err := o.confirmed(ctx, req, rcpt)
		if err != nil {
			return result{err: err}
		}
		metrics.ActionsConfirmed.Add(1)
		o.notify(*outcome)
		return result{outcome: outcome}
	}

	reqLog.Warnf("gave up after %d attempts, disposition unknown", o.cfg.MaxAttempts)
	return o.pending(req)
}

// confirmed builds the applied outcome, including the mandatory fresh read
// of pool state after the confirmation point.
func (o *Orchestrator) confirmed(ctx context.Context, req ActionRequest, rcpt *chain.Receipt) (*ActionOutcome, error) {
	outcome := &ActionOutcome{
		Kind:            req.Kind,
		Caller:          req.Caller,
		ConfirmationRef: rcpt.Ref,
		Sequence:        rcpt.Sequence,
		Events:          rcpt.Events,
		ConfirmedAt:     o.now(),
	}

	a, b, err := o.backend.Reserves(ctx)
	if err != nil {
		return nil, &OrchestrationError{Class: ClassTransient,
			Err: fmt.Errorf("applied but post-confirmation read failed: %w", err)}
	}
	price, err := o.backend.Price(ctx)
	if err != nil {
		return nil, &OrchestrationError{Class: ClassTransient,
			Err: fmt.Errorf("applied but post-confirmation read failed: %w", err)}
	}
	outcome.ReserveA, outcome.ReserveB, outcome.Price = a, b, price
	return outcome, nil
}

func (o *Orchestrator) pending(req ActionRequest) result {
	metrics.ActionsPending.Add(1)
	return result{outcome: &ActionOutcome{Kind: req.Kind, Caller: req.Caller, Pending: true}}
}

func (o *Orchestrator) notify(outcome ActionOutcome) {
	o.mu.RLock()
	obs := o.observers
	o.mu.RUnlock()
	for _, ob := range obs {
		ob.OnOutcome(outcome)
	}
}
