package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/domain/canonical"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/metrics"
	"github.com/edunexus/governance/internal/observability/statsd"
)

// IdempotencyServiceOptions groups dependencies for IdempotencyService.
type IdempotencyServiceOptions struct {
	Repo       core.IdempotencyRepository // Required: record store
	Logger     *slog.Logger               // Optional: structured logger
	Metrics    statsd.Sink                // Optional: metrics sink
	Now        func() time.Time           // Optional: clock, defaults to time.Now
	DefaultTTL time.Duration              // Optional: TTL used when callers pass zero
}

// IdempotencyService maps (scope, key) to the first request's hash and response snapshot.
//
// Callers use the lookup, execute, store sequence (see Guard). That sequence is not atomic: two
// concurrent requests with the same key can both miss, both execute the guarded operation and
// both store. Insert-if-absent keeps exactly one persisted snapshot, but the operation itself may
// have run twice. Operations that must never repeat need their own uniqueness guarantee.
type IdempotencyService struct {
	repo       core.IdempotencyRepository
	logger     *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
	defaultTTL time.Duration
}

// NewIdempotencyService constructs a new IdempotencyService.
func NewIdempotencyService(opts IdempotencyServiceOptions) (*IdempotencyService, error) {
	if opts.Repo == nil {
		return nil, errors.New("IdempotencyRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &IdempotencyService{
		repo:       opts.Repo,
		logger:     logger.With("component", "idempotency_service"),
		metrics:    opts.Metrics,
		now:        now,
		defaultTTL: model.EffectiveIdempotencyTTL(opts.DefaultTTL),
	}, nil
}

// LookupReplay returns the stored snapshot for (scope, key). It reports false when key is
// blank, no record exists, or the record expired. A live record whose hash differs from
// requestHash is a Conflict.
func (s *IdempotencyService) LookupReplay(
	ctx context.Context,
	scope, key, requestHash string,
) (json.RawMessage, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, nil
	}

	rec, err := s.repo.Find(ctx, scope, key, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency record: %w", err)
	}
	if rec == nil {
		metrics.EmitIdempotency(s.metrics, scope, metrics.IdempotencyMiss)
		return nil, false, nil
	}
	if rec.RequestHash != requestHash {
		metrics.EmitIdempotency(s.metrics, scope, metrics.IdempotencyConflict)
		s.logger.WarnContext(ctx, "idempotency key reused with a different request",
			"scope", scope,
			"idem_key", key,
		)
		return nil, false, apperrors.Conflict("idempotency key reused for a different request")
	}

	metrics.EmitIdempotency(s.metrics, scope, metrics.IdempotencyReplay)
	return rec.ResponseSnapshot, true, nil
}

// Store records snapshot for (scope, key) with a TTL of at least five minutes. It is a no-op
// for a blank key, and never overwrites a live record: the first writer wins.
func (s *IdempotencyService) Store(
	ctx context.Context,
	scope, key, requestHash string,
	snapshot json.RawMessage,
	ttl time.Duration,
) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	inserted, err := s.repo.Insert(ctx, &model.IdempotencyRecord{
		Scope:            scope,
		Key:              key,
		RequestHash:      requestHash,
		ResponseSnapshot: snapshot,
		CreatedAt:        now,
		ExpiresAt:        now.Add(model.EffectiveIdempotencyTTL(ttl)),
	})
	if err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	if !inserted {
		s.logger.DebugContext(ctx, "idempotency record already present, keeping first snapshot",
			"scope", scope,
			"idem_key", key,
		)
	}
	return nil
}

// GuardRequest describes one guarded operation invocation.
type GuardRequest struct {
	Scope   string
	Key     string
	Payload any
	TTL     time.Duration
}

// GuardResult is the outcome of Guard.
type GuardResult struct {
	Snapshot json.RawMessage
	Replayed bool
}

// RequestHash hashes payload in its canonical form.
func RequestHash(payload any) (string, error) {
	h, err := canonical.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	return h, nil
}

// Guard runs fn unless a replayable snapshot exists, then stores fn's snapshot. A failing fn
// stores nothing. A store failure after fn succeeded is logged and the fresh snapshot is still
// returned, because the operation's effect has already happened.
func (s *IdempotencyService) Guard(
	ctx context.Context,
	req GuardRequest,
	fn func(ctx context.Context) (json.RawMessage, error),
) (GuardResult, error) {
	hash, err := RequestHash(req.Payload)
	if err != nil {
		return GuardResult{}, err
	}

	snapshot, ok, err := s.LookupReplay(ctx, req.Scope, req.Key, hash)
	if err != nil {
		return GuardResult{}, err
	}
	if ok {
		return GuardResult{Snapshot: snapshot, Replayed: true}, nil
	}

	snapshot, err = fn(ctx)
	if err != nil {
		return GuardResult{}, err
	}

	if err := s.Store(ctx, req.Scope, req.Key, hash, snapshot, req.TTL); err != nil {
		s.logger.WarnContext(ctx, "failed to store idempotency snapshot",
			"scope", req.Scope,
			"error", err,
		)
	}
	return GuardResult{Snapshot: snapshot}, nil
}
