package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/refledger/internal/database/testutil"
	"github.com/charlesng35/refledger/internal/models"
)

func TestInvitationService_GetOrCreateTokenIsIdempotent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	first, created, err := l.invitations.GetOrCreateToken(ctx, "-100", "7")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "-100", first.CommunityID)
	require.Equal(t, "7", first.OwnerID)

	for i := 0; i < 5; i++ {
		again, created, err := l.invitations.GetOrCreateToken(ctx, "-100", " 7 ")
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.Token, again.Token)
	}

	require.Equal(t, 1, l.authority.Calls())
	require.Equal(t, []string{"ref-7"}, l.authority.labels)

	var rows int64
	require.NoError(t, l.db.Model(&models.InvitationToken{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestInvitationService_TokensAreScopedPerCommunity(t *testing.T) {
	l := newLedger(t)

	a := l.tokenFor(t, "-100", "7")
	b := l.tokenFor(t, "-200", "7")
	require.NotEqual(t, a, b)

	owner, err := l.invitations.Resolve(context.Background(), "-100", a)
	require.NoError(t, err)
	require.Equal(t, "7", owner)

	_, err = l.invitations.Resolve(context.Background(), "-200", a)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestInvitationService_ConcurrentRequestsShareOneToken(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	const workers = 8
	tokens := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			token, _, err := l.invitations.GetOrCreateToken(ctx, "-100", "7")
			errs[idx] = err
			if token != nil {
				tokens[idx] = token.Token
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, tokens[0], tokens[i])
	}

	stored, err := l.invitations.TokenFor(ctx, "-100", "7")
	require.NoError(t, err)
	require.Equal(t, tokens[0], stored.Token)
}

func TestInvitationService_AuthorityFailures(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	cases := []struct {
		name     string
		err      error
		sentinel error
		kind     AuthorityErrorKind
	}{
		{
			name:     "permission",
			err:      NewAuthorityError(AuthorityPermission, errors.New("not enough rights")),
			sentinel: ErrInvitePermissionDenied,
			kind:     AuthorityPermission,
		},
		{
			name:     "rate limited",
			err:      &AuthorityError{Kind: AuthorityRateLimited, RetryAfter: 3 * time.Second},
			sentinel: ErrInviteAuthorityUnavailable,
			kind:     AuthorityRateLimited,
		},
		{
			name:     "plain error defaults to transport",
			err:      errors.New("connection reset"),
			sentinel: ErrInviteAuthorityUnavailable,
			kind:     AuthorityTransport,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewInvitationService(db, &fakeAuthority{err: tc.err})
			require.NoError(t, err)

			token, created, err := svc.GetOrCreateToken(ctx, "-100", "7")
			require.Nil(t, token)
			require.False(t, created)
			require.ErrorIs(t, err, tc.sentinel)

			var authErr *AuthorityError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tc.kind, authErr.Kind)

			_, err = svc.TokenFor(ctx, "-100", "7")
			require.ErrorIs(t, err, ErrTokenNotFound)
		})
	}
}

func TestInvitationService_ExistingTokenNeedsNoAuthority(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	require.NoError(t, db.Create(&models.InvitationToken{
		Token:       "https://t.me/+abc",
		CommunityID: "-100",
		OwnerID:     "7",
		CreatedAt:   time.Now().UTC(),
	}).Error)

	svc, err := NewInvitationService(db, nil)
	require.NoError(t, err)

	token, created, err := svc.GetOrCreateToken(ctx, "-100", "7")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "https://t.me/+abc", token.Token)

	_, _, err = svc.GetOrCreateToken(ctx, "-100", "8")
	require.ErrorIs(t, err, ErrNoAuthority)
}

func TestInvitationService_TokenCollision(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	svc, err := NewInvitationService(db, &fakeAuthority{fixed: "https://t.me/+same"})
	require.NoError(t, err)

	_, created, err := svc.GetOrCreateToken(ctx, "-100", "7")
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = svc.GetOrCreateToken(ctx, "-100", "8")
	require.ErrorIs(t, err, ErrTokenCollision)
}

func TestInvitationService_RejectsEmptyIdentifiers(t *testing.T) {
	l := newLedger(t)

	_, _, err := l.invitations.GetOrCreateToken(context.Background(), "", "7")
	require.Error(t, err)
	require.Zero(t, l.authority.Calls())
}

func TestInvitationService_CustomLabelPrefix(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	authority := &fakeAuthority{}
	svc, err := NewInvitationService(db, authority, WithInviteLabelPrefix("invite:"))
	require.NoError(t, err)

	_, _, err = svc.GetOrCreateToken(context.Background(), "-100", "7")
	require.NoError(t, err)
	require.Equal(t, []string{"invite:7"}, authority.labels)
}
