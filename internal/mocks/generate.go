// Package mocks provides gomock implementations of the core repository ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRunRepository(ctrl)
//	repo.EXPECT().MarkRunning(gomock.Any(), "id").Return(true, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_run_repository_mock.go github.com/edunexus/governance/internal/core JobRunRepository

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=idempotency_repository_mock.go github.com/edunexus/governance/internal/core IdempotencyRepository

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=document_repository_mock.go github.com/edunexus/governance/internal/core DocumentRepository
