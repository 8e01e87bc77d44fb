//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nymreg/internal/events"
	id "nymreg/pkg/domain"
	"nymreg/pkg/testutil/containers"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	pc := containers.NewPostgresContainer(t)
	store := New(pc.DB)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func account(b byte) id.Account {
	var a id.Account
	a[19] = b
	return a
}

func TestOutboxRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Append(ctx, events.Event{
		Type:    events.TypeTokensMinted,
		Account: account(1),
		Amount:  600,
	}))
	require.NoError(t, store.Append(ctx, events.Event{
		Type:         events.TypeTokensTransferred,
		Account:      account(1),
		Counterparty: account(2),
		Amount:       40,
	}))

	got, err := store.ListByAccount(ctx, account(1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeTokensMinted, got[0].Type)
	assert.Equal(t, uint64(40), got[1].Amount)
	assert.Equal(t, account(2), got[1].Counterparty)

	recent, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, events.TypeTokensTransferred, recent[0].Type)
}

func TestMarkPublished(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Append(ctx, events.Event{
		Type:    events.TypeUserRegistered,
		Account: account(1),
	}))

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkPublished(ctx, []uuid.UUID{pending[0].ID}))

	pending, err = store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
