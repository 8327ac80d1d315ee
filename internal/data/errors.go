package data

import apperrors "github.com/edunexus/governance/internal/errors"

// Shared sentinel errors for data-layer repositories. They carry application error codes so
// callers above the port boundary can classify them without importing this package.
var (
	ErrJobRunNotFound   = apperrors.NotFound("job run not found")
	ErrDocumentNotFound = apperrors.NotFound("document not found")
	ErrScopeRequired    = apperrors.ValidationField("scope", "idempotency scope is required")
	ErrKeyRequired      = apperrors.ValidationField("key", "idempotency key is required")
)
