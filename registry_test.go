package swirl

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopPerformer(ctx context.Context, data []byte, env any, pool *pgxpool.Pool) error {
	return nil
}

func TestRegistryGetUnknownType(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("DoesNotExist")
	assert.False(t, ok)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("SendEmail", noopPerformer))

	p, ok := r.Get("SendEmail")
	require.True(t, ok)
	require.NotNil(t, p)
}

func TestRegistryDuplicateRegistrationIsAnError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("SendEmail", noopPerformer))

	err := r.Register("SendEmail", noopPerformer)
	assert.Error(t, err)
}

func TestRegistryRejectsEmptyJobType(t *testing.T) {
	r := NewRegistry()
	err := r.Register("", noopPerformer)
	assert.Error(t, err)
}
