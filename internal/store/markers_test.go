package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/cli/internal/models"
)

func TestMarkers_SetGetDelete(t *testing.T) {
	m := NewMarkers(openTestDB(t))
	ctx := context.Background()

	v, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, m.Set(ctx, "k", []byte("one")))
	require.NoError(t, m.Set(ctx, "k", []byte("two")))

	v, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), v)

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))

	v, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMarkers_PendingRegistrationLifecycle(t *testing.T) {
	m := NewMarkers(openTestDB(t))
	ctx := context.Background()

	p, err := m.LoadPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	submitted := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.SavePending(ctx, models.PendingRegistration{Email: "a@b.com", SubmittedAt: submitted}))

	p, err = m.LoadPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "a@b.com", p.Email)
	assert.True(t, submitted.Equal(p.SubmittedAt))

	require.NoError(t, m.ClearPending(ctx))
	p, err = m.LoadPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMarkers_ReturnToIsConsumedOnce(t *testing.T) {
	m := NewMarkers(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, m.SaveReturnTo(ctx, "account profile"))

	path, err := m.TakeReturnTo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "account profile", path)

	path, err = m.TakeReturnTo(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)
}
