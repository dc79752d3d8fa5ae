package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/refledger/internal/database/testutil"
	"github.com/charlesng35/refledger/internal/models"
)

func TestIdentityService_UpsertFirstWriteWins(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := NewIdentityService(db, WithIdentityClock(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Upsert(ctx, models.Individual{ID: " 42 ", Handle: "@alice", DisplayName: "Alice"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = svc.Upsert(ctx, models.Individual{ID: "42", Handle: "alice_renamed", DisplayName: "Someone Else"})
	require.NoError(t, err)
	require.False(t, created)

	stored, err := svc.Lookup(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "alice", stored.Handle)
	require.Equal(t, "Alice", stored.DisplayName)
	require.True(t, stored.FirstSeen.Equal(now))
	require.Equal(t, "@alice", stored.Display())
}

func TestIdentityService_LookupMissing(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewIdentityService(db)
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "missing")
	require.ErrorIs(t, err, ErrIndividualNotFound)

	_, err = svc.Lookup(context.Background(), "  ")
	require.ErrorIs(t, err, ErrIndividualNotFound)
}

func TestIdentityService_UpsertRequiresID(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewIdentityService(db)
	require.NoError(t, err)

	_, err = svc.Upsert(context.Background(), models.Individual{Handle: "nobody"})
	require.Error(t, err)
}

func TestNewIdentityService_RequiresDB(t *testing.T) {
	_, err := NewIdentityService(nil)
	require.Error(t, err)
}
