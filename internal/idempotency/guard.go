package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/logger"
)

// Outcome is the stored result of one extraction.
type Outcome[A any] struct {
	Accepted         A               `json:"accepted"`
	Unmatched        []defect.Defect `json:"unmatched"`
	Defects          []defect.Defect `json:"defects"`
	AlreadyCompleted bool            `json:"-"`
}

// ComputeFunc produces a fresh outcome. It is the only place the model is called.
type ComputeFunc[A any] func(ctx context.Context) (Outcome[A], error)

// CommitFunc writes the outcome's domain rows. It may append defects to out and
// reports partial when some rows could not be written. An error means nothing
// useful was committed.
type CommitFunc[A any] func(ctx context.Context, out *Outcome[A]) (partial bool, err error)

// DefaultLease is how long a running claim keeps other callers waiting before
// it may be taken over.
const DefaultLease = 5 * time.Minute

const (
	defaultPollInterval = 100 * time.Millisecond
	releaseTimeout      = 5 * time.Second
)

// errClaimLost means another run took over this run's claim.
var errClaimLost = errors.New("claim taken over by another run")

// Option configures a Guard.
type Option func(*options)

type options struct {
	locker Locker
	log    *logger.Logger
	lease  time.Duration
	poll   time.Duration
	now    func() time.Time
}

// WithLocker serializes runs for the same key through l.
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithLogger sets the logger used for cache hits and conflicts.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLease sets how long a running claim stays live without being refreshed.
func WithLease(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithPollInterval sets how often a waiting caller re-reads a claimed key.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// Guard runs an extraction at most once per key.
type Guard[A any] struct {
	store    Store
	complete func(A) bool
	opts     options
}

// NewGuard creates a guard over store. complete decides whether a stored
// outcome is good enough to be served without recomputing; nil accepts any
// completed outcome.
func NewGuard[A any](store Store, complete func(A) bool, opts ...Option) *Guard[A] {
	o := options{
		log:   logger.NewNop(),
		lease: DefaultLease,
		poll:  defaultPollInterval,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if complete == nil {
		complete = func(A) bool { return true }
	}
	return &Guard[A]{store: store, complete: complete, opts: o}
}

// Run returns the stored outcome for key when it is completed. Otherwise it
// claims the key, computes, commits and stores a new outcome. A caller that
// finds a live claim waits for that run and returns its outcome with
// AlreadyCompleted set; only a claim older than the lease is taken over.
func (g *Guard[A]) Run(ctx context.Context, key Key, compute ComputeFunc[A], commit CommitFunc[A]) (Outcome[A], error) {
	var zero Outcome[A]
	log := g.opts.log.With("entity_id", key.EntityID.String(), "kind", string(key.Kind))

	if g.opts.locker != nil {
		unlock, err := g.opts.locker.Lock(ctx, key.String())
		if err != nil {
			return zero, fmt.Errorf("failed to lock %s: %w", key, err)
		}
		defer unlock()
	}

	waited := false
	for {
		out, version, err := g.claim(ctx, key, log, waited)
		if err != nil {
			return zero, err
		}
		if version == 0 {
			return out, nil
		}

		out, err = g.runClaimed(ctx, key, version, compute, commit, log)
		if errors.Is(err, errClaimLost) {
			log.Warn("lost claim, waiting for the run that took it over", "error", err)
			waited = true
			continue
		}
		return out, err
	}
}

// claim takes key by writing a running record and returns the version it
// holds. Version 0 means out is a stored outcome to serve instead. A partial
// outcome is served only to a caller that waited for the run producing it.
func (g *Guard[A]) claim(ctx context.Context, key Key, log *logger.Logger, waited bool) (Outcome[A], int64, error) {
	var zero Outcome[A]
	for {
		prior, err := g.store.ReadPriorResult(ctx, key)
		if err != nil {
			return zero, 0, fmt.Errorf("failed to read prior result for %s: %w", key, err)
		}
		if out, ok := g.cached(prior); ok {
			log.Info("serving stored outcome", "version", prior.Version)
			return out, 0, nil
		}

		var version int64
		if prior != nil {
			version = prior.Version
			switch {
			case prior.Status == StatusRunning && g.live(prior):
				if !waited {
					log.Info("waiting for running extraction", "version", prior.Version)
					waited = true
				}
				if err := g.sleep(ctx); err != nil {
					return zero, 0, fmt.Errorf("waiting for %s: %w", key, err)
				}
				continue
			case prior.Status == StatusPartial && waited:
				out, err := g.decode(key, prior)
				return out, 0, err
			case prior.Status == StatusRunning:
				log.Warn("taking over stale claim", "updated_at", prior.UpdatedAt)
			}
		}

		err = g.store.WriteResult(ctx, key, Record{Payload: emptyPayload, Status: StatusRunning}, version)
		switch {
		case err == nil:
			return zero, version + 1, nil
		case errors.Is(err, ErrConflict):
			continue
		default:
			return zero, 0, fmt.Errorf("failed to claim %s: %w", key, err)
		}
	}
}

// runClaimed computes and commits while holding the claim at version.
func (g *Guard[A]) runClaimed(ctx context.Context, key Key, version int64, compute ComputeFunc[A], commit CommitFunc[A], log *logger.Logger) (Outcome[A], error) {
	var zero Outcome[A]

	out, err := compute(ctx)
	if err != nil {
		g.release(ctx, key, zero, StatusFailed, version, log)
		return zero, err
	}

	// Refreshes the lease before any domain row is written.
	if err := g.write(ctx, key, out, StatusRunning, version); err != nil {
		return zero, err
	}
	version++

	status := StatusCompleted
	if commit != nil {
		partial, err := commit(ctx, &out)
		if err != nil {
			g.release(ctx, key, out, StatusPending, version, log)
			return zero, fmt.Errorf("failed to commit %s: %w", key, err)
		}
		if partial {
			status = StatusPartial
		}
	}
	if status == StatusCompleted && !g.complete(out.Accepted) {
		status = StatusPartial
	}

	if err := g.write(ctx, key, out, status, version); err != nil {
		return zero, err
	}
	log.Debug("stored outcome", "status", string(status), "defects", len(out.Defects), "unmatched", len(out.Unmatched))
	return out, nil
}

// release hands the key back after a failed run so the next caller recomputes
// without waiting out the lease.
func (g *Guard[A]) release(ctx context.Context, key Key, out Outcome[A], status Status, version int64, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := g.write(ctx, key, out, status, version); err != nil {
		log.Warn("failed to release claim", "status", string(status), "error", err)
	}
}

func (g *Guard[A]) live(rec *Record) bool {
	return g.opts.now().Sub(rec.UpdatedAt) < g.opts.lease
}

func (g *Guard[A]) sleep(ctx context.Context) error {
	t := time.NewTimer(g.opts.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Guard[A]) cached(rec *Record) (Outcome[A], bool) {
	var out Outcome[A]
	if rec == nil || rec.Status != StatusCompleted {
		return out, false
	}
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		g.opts.log.Warn("ignoring undecodable stored outcome", "error", err)
		return out, false
	}
	if !g.complete(out.Accepted) {
		return out, false
	}
	out.AlreadyCompleted = true
	return out, true
}

func (g *Guard[A]) decode(key Key, rec *Record) (Outcome[A], error) {
	var out Outcome[A]
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		return out, fmt.Errorf("failed to decode outcome for %s: %w", key, err)
	}
	out.AlreadyCompleted = true
	return out, nil
}

func (g *Guard[A]) write(ctx context.Context, key Key, out Outcome[A], status Status, version int64) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode outcome for %s: %w", key, err)
	}
	if err := g.store.WriteResult(ctx, key, Record{Payload: payload, Status: status}, version); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w: %w", errClaimLost, err)
		}
		return fmt.Errorf("failed to write result for %s: %w", key, err)
	}
	return nil
}
