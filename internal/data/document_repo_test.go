package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/testutil"
)

func TestDocumentRepo_StatusFlow(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewDocumentRepo(db, nil)

		doc, err := repo.Create(ctx, &model.CreateDocumentRequest{
			OwnerID:  "teacher-1",
			Filename: "algebra.pdf",
			FileType: "application/pdf",
			FileSize: 2048,
		})
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusUploading, doc.Status)

		ok, err := repo.UpdateStatus(ctx, model.DocumentStatusUpdate{
			ID:   doc.ID,
			To:   model.DocumentStatusReady,
			From: []model.DocumentStatus{model.DocumentStatusEmbedding},
		})
		require.NoError(t, err)
		assert.False(t, ok, "guarded update skips when status does not match")

		ok, err = repo.UpdateStatus(ctx, model.DocumentStatusUpdate{ID: doc.ID, To: model.DocumentStatusParsing})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusParsing, got.Status)

		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrDocumentNotFound)
	})
}
