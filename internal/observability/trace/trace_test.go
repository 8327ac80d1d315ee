package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithIDAndEnsure(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ID(ctx))
	assert.Equal(t, ctx, WithID(ctx, "  "))

	ctx2 := WithID(ctx, "req-1")
	assert.Equal(t, "req-1", ID(ctx2))

	same, id := Ensure(ctx2)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "req-1", ID(same))

	fresh, generated := Ensure(ctx)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, ID(fresh))
}
