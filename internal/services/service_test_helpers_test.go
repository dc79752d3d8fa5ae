package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/database/testutil"
	"github.com/charlesng35/refledger/internal/models"
)

type fakeAuthority struct {
	mu     sync.Mutex
	calls  int32
	labels []string
	err    error
	fixed  string
}

func (f *fakeAuthority) CreateInviteLink(_ context.Context, communityID, label string) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.labels = append(f.labels, label)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.fixed != "" {
		return f.fixed, nil
	}
	return fmt.Sprintf("https://t.me/+%s-%d", communityID, n), nil
}

func (f *fakeAuthority) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type ledger struct {
	db          *gorm.DB
	identity    *IdentityService
	invitations *InvitationService
	attribution *AttributionService
	stats       *ReferralStatsService
	journal     *JournalService
	authority   *fakeAuthority
}

func newLedger(t *testing.T) *ledger {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newStepClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.Second)
	authority := &fakeAuthority{}

	identity, err := NewIdentityService(db, WithIdentityClock(clock.Now))
	require.NoError(t, err)
	invitations, err := NewInvitationService(db, authority, WithInvitationClock(clock.Now))
	require.NoError(t, err)
	journal, err := NewJournalService(db)
	require.NoError(t, err)
	attribution, err := NewAttributionService(db, WithAttributionClock(clock.Now), WithJournal(journal))
	require.NoError(t, err)
	stats, err := NewReferralStatsService(db)
	require.NoError(t, err)

	return &ledger{
		db:          db,
		identity:    identity,
		invitations: invitations,
		attribution: attribution,
		stats:       stats,
		journal:     journal,
		authority:   authority,
	}
}

func (l *ledger) tokenFor(t *testing.T, community, owner string) string {
	t.Helper()
	token, _, err := l.invitations.GetOrCreateToken(context.Background(), community, owner)
	require.NoError(t, err)
	return token.Token
}

func (l *ledger) join(t *testing.T, community, subject, token string) Outcome {
	t.Helper()
	return l.transition(t, community, subject, models.StatusLeft, models.StatusMember, token)
}

func (l *ledger) transition(t *testing.T, community, subject string, from, to models.MemberStatus, token string) Outcome {
	t.Helper()
	result, err := l.attribution.HandleTransition(context.Background(), TransitionEvent{
		CommunityID: community,
		Subject:     models.Individual{ID: subject},
		OldStatus:   from,
		NewStatus:   to,
		Token:       token,
	})
	require.NoError(t, err)
	return result.Outcome
}

func (l *ledger) creditCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, l.db.Model(&models.ReferralCredit{}).Count(&count).Error)
	return count
}
