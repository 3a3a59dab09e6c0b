package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basislager/tickerchronik/internal/ticker"
)

func TestStore_AppendCommitPush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Sync(ctx))
	require.NoError(t, store.Append(ctx, "ticker", []ticker.Record{{ID: "a"}}))

	rev, err := store.Commit(ctx, "add a")
	require.NoError(t, err)
	require.NotEmpty(t, rev)

	require.NoError(t, store.Push(ctx))
	require.Len(t, store.RemoteRecords("ticker"), 1)

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, rev, head)
}

func TestStore_PushRejectedWhenRemoteMoved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Sync(ctx))

	require.NoError(t, store.Append(ctx, "ticker", []ticker.Record{{ID: "a"}}))
	_, err := store.Commit(ctx, "add a")
	require.NoError(t, err)

	store.AdvanceRemote("ticker", []ticker.Record{{ID: "b"}})

	require.ErrorIs(t, store.Push(ctx), ticker.ErrRemoteMoved)

	// Sync-and-retry resolves the rejection.
	require.NoError(t, store.Sync(ctx))
	records, err := store.ReadAll(ctx, "ticker")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "b", records[0].ID)
}

func TestStore_DiscardDropsStagedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Sync(ctx))

	require.NoError(t, store.Append(ctx, "ticker", []ticker.Record{{ID: "a"}}))
	_, err := store.Commit(ctx, "add a")
	require.NoError(t, err)
	require.NoError(t, store.Discard(ctx))

	records, err := store.ReadAll(ctx, "ticker")
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, store.RemoteRecords("ticker"))
}

func TestStore_CommitWithoutStagedFails(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_, err := store.Commit(context.Background(), "empty")
	require.Error(t, err)
}

func TestStore_InjectedErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	syncErr := errors.New("network down")
	store.FailSyncWith(syncErr)
	require.ErrorIs(t, store.Sync(ctx), syncErr)
	store.FailSyncWith(nil)
	require.NoError(t, store.Sync(ctx))

	pushErr := ticker.ErrUnauthorized
	store.FailPushWith(pushErr)
	require.ErrorIs(t, store.Push(ctx), pushErr)
}
