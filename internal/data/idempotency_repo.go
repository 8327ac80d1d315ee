package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/data/pgxutil"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
)

// IdempotencyRepoOptions configures an IdempotencyRepo.
type IdempotencyRepoOptions struct {
	Logger *slog.Logger
}

// IdempotencyRepo stores replay snapshots in the idempotency_keys table.
type IdempotencyRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewIdempotencyRepo creates a Postgres-backed idempotency repository.
func NewIdempotencyRepo(db *sql.DB, opts IdempotencyRepoOptions) *IdempotencyRepo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyRepo{DB: db, logger: logger.With("component", "idempotency_repo")}
}

const idempotencyColumns = `id, scope, idem_key, request_hash, response_snapshot, expires_at, created_at`

// Find returns the unexpired record for (scope, key) or nil when none exists.
func (r *IdempotencyRepo) Find(
	ctx context.Context,
	scope, key string,
	now time.Time,
) (*model.IdempotencyRecord, error) {
	if err := requireScopeAndKey(scope, key); err != nil {
		return nil, err
	}

	query := `SELECT ` + idempotencyColumns + `
		FROM idempotency_keys
		WHERE scope = $1 AND idem_key = $2 AND expires_at > $3`

	rec, err := pgxutil.QueryOne[model.IdempotencyRecord](ctx, r.DB, query, scope, key, now)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find idempotency record: %w", apperrors.MapDBError(err))
	}
	return rec, nil
}

// Insert writes rec unless a live record for (scope, key) already exists. A row that has
// expired but not yet been reaped is replaced, since lookups already treat it as absent.
func (r *IdempotencyRepo) Insert(ctx context.Context, rec *model.IdempotencyRecord) (bool, error) {
	if rec == nil {
		return false, errors.New("idempotency record is required")
	}
	if err := requireScopeAndKey(rec.Scope, rec.Key); err != nil {
		return false, err
	}

	const query = `
		INSERT INTO idempotency_keys (scope, idem_key, request_hash, response_snapshot, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, idem_key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    response_snapshot = EXCLUDED.response_snapshot,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING id`

	var id string
	err := r.DB.QueryRowContext(ctx, query,
		rec.Scope, rec.Key, rec.RequestHash, string(rec.ResponseSnapshot), rec.ExpiresAt, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.DebugContext(ctx, "idempotency record already present",
				"scope", rec.Scope,
				"key", rec.Key,
			)
			return false, nil
		}
		if apperrors.IsUniqueViolation(err) {
			// A concurrent insert for the same key committed first.
			return false, nil
		}
		return false, fmt.Errorf("insert idempotency record: %w", apperrors.MapDBError(err))
	}
	rec.ID = id
	return true, nil
}

// DeleteExpired removes up to limit records whose expiry is at or before now.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM idempotency_keys
		WHERE id IN (
			SELECT id FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`

	res, err := r.DB.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func requireScopeAndKey(scope, key string) error {
	if scope == "" {
		return ErrScopeRequired
	}
	if key == "" {
		return ErrKeyRequired
	}
	return nil
}

var _ core.IdempotencyRepository = (*IdempotencyRepo)(nil)
