package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/refledger/internal/models"
)

func TestAttributionService_JoinLeaveRejoin(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	tokA := l.tokenFor(t, "-100", "A")

	require.Equal(t, OutcomeCredited, l.join(t, "-100", "B", tokA))

	stats, err := l.stats.StatsFor(ctx, "-100", "A", 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Count)
	require.Len(t, stats.Recent, 1)
	require.Equal(t, "B", stats.Recent[0].ReferredID)

	require.Equal(t, OutcomeNotJoin, l.transition(t, "-100", "B", models.StatusMember, models.StatusLeft, ""))
	require.Equal(t, OutcomeDuplicate, l.join(t, "-100", "B", tokA))

	stats, err = l.stats.StatsFor(ctx, "-100", "A", 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Count)
}

func TestAttributionService_JoinWithoutTokenCreditsNobody(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	tokA := l.tokenFor(t, "-100", "A")
	require.Equal(t, OutcomeCredited, l.join(t, "-100", "B", tokA))

	before, err := l.stats.Leaderboard(ctx, "-100", 10)
	require.NoError(t, err)

	require.Equal(t, OutcomeNoToken, l.join(t, "-100", "C", ""))

	after, err := l.stats.Leaderboard(ctx, "-100", 10)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.EqualValues(t, 1, l.creditCount(t))

	_, err = l.identity.Lookup(ctx, "C")
	require.ErrorIs(t, err, ErrIndividualNotFound)
}

func TestAttributionService_IgnoredTransitionsWriteNothing(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	tokA := l.tokenFor(t, "-100", "A")

	require.Equal(t, OutcomeNotJoin, l.transition(t, "-100", "Z", models.StatusMember, models.StatusAdministrator, ""))
	require.Equal(t, OutcomeNotJoin, l.transition(t, "-100", "Y", models.StatusMember, models.StatusLeft, tokA))
	require.Equal(t, OutcomeNotJoin, l.transition(t, "-100", "X", models.StatusPending, models.StatusMember, tokA))
	require.Equal(t, OutcomeUnresolvedToken, l.join(t, "-100", "W", "https://t.me/+unknown"))

	for _, id := range []string{"Z", "Y", "X", "W"} {
		_, err := l.identity.Lookup(ctx, id)
		require.ErrorIs(t, err, ErrIndividualNotFound, id)
	}
	require.Zero(t, l.creditCount(t))
}

func TestAttributionService_CreditedJoinRecordsSubject(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	tokA := l.tokenFor(t, "-100", "A")

	require.Equal(t, OutcomeCredited, l.join(t, "-100", "B", tokA))

	subject, err := l.identity.Lookup(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, "B", subject.ID)
}

func TestAttributionService_SelfJoinRejected(t *testing.T) {
	l := newLedger(t)

	tokA := l.tokenFor(t, "-100", "A")
	require.Equal(t, OutcomeSelfJoin, l.join(t, "-100", "A", tokA))
	require.Zero(t, l.creditCount(t))
}

func TestAttributionService_UnresolvedTokens(t *testing.T) {
	l := newLedger(t)

	tokA := l.tokenFor(t, "-100", "A")

	require.Equal(t, OutcomeUnresolvedToken, l.join(t, "-100", "B", "https://t.me/+unknown"))
	// A token from another community does not resolve here.
	require.Equal(t, OutcomeUnresolvedToken, l.join(t, "-200", "B", tokA))
	require.Zero(t, l.creditCount(t))
}

func TestAttributionService_OnlyGenuineJoinsCount(t *testing.T) {
	l := newLedger(t)
	tokA := l.tokenFor(t, "-100", "A")

	cases := []struct {
		from, to models.MemberStatus
	}{
		{models.StatusPending, models.StatusMember},
		{models.StatusMember, models.StatusMember},
		{models.StatusLeft, models.StatusAdministrator},
		{models.StatusAdministrator, models.StatusMember},
		{models.StatusLeft, models.StatusPending},
		{models.StatusMember, models.StatusKicked},
	}
	for _, tc := range cases {
		require.Equal(t, OutcomeNotJoin, l.transition(t, "-100", "B", tc.from, tc.to, tokA), "%s -> %s", tc.from, tc.to)
	}
	require.Zero(t, l.creditCount(t))

	require.Equal(t, OutcomeCredited, l.transition(t, "-100", "B", models.StatusRestricted, models.StatusMember, tokA))
}

func TestAttributionService_ConcurrentIdenticalJoinsCreditOnce(t *testing.T) {
	l := newLedger(t)
	tokA := l.tokenFor(t, "-100", "A")

	const workers = 16
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			result, err := l.attribution.HandleTransition(context.Background(), TransitionEvent{
				CommunityID: "-100",
				Subject:     models.Individual{ID: "B", Handle: "bob"},
				OldStatus:   models.StatusLeft,
				NewStatus:   models.StatusMember,
				Token:       tokA,
			})
			outcomes[idx] = result.Outcome
			errs[idx] = err
		}(i)
	}
	close(start)
	wg.Wait()

	credited := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeCredited:
			credited++
		case OutcomeDuplicate:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	require.Equal(t, 1, credited)
	require.EqualValues(t, 1, l.creditCount(t))
}

func TestAttributionService_FirstReferrerKeepsCredit(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	tokA := l.tokenFor(t, "-100", "A")
	tokD := l.tokenFor(t, "-100", "D")

	require.Equal(t, OutcomeCredited, l.join(t, "-100", "B", tokA))
	require.Equal(t, OutcomeDuplicate, l.join(t, "-100", "B", tokD))

	var credit models.ReferralCredit
	require.NoError(t, l.db.Where("community_id = ? AND referred_id = ?", "-100", "B").First(&credit).Error)
	require.Equal(t, "A", credit.ReferrerID)
	require.Equal(t, tokA, credit.TokenUsed)

	// Credits are per community.
	tokA2 := l.tokenFor(t, "-200", "A")
	require.Equal(t, OutcomeCredited, l.join(t, "-200", "B", tokA2))

	stats, err := l.stats.StatsFor(ctx, "-100", "D", 0)
	require.NoError(t, err)
	require.Zero(t, stats.Count)
	require.Empty(t, stats.Recent)
}

func TestAttributionService_RejectsIncompleteEvents(t *testing.T) {
	l := newLedger(t)

	_, err := l.attribution.HandleTransition(context.Background(), TransitionEvent{
		CommunityID: "-100",
		OldStatus:   models.StatusLeft,
		NewStatus:   models.StatusMember,
	})
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestAttributionService_JournalsOutcomes(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	tokA := l.tokenFor(t, "-100", "A")
	_, err := l.attribution.HandleTransition(ctx, TransitionEvent{
		CommunityID: "-100",
		Subject:     models.Individual{ID: "B"},
		OldStatus:   models.StatusLeft,
		NewStatus:   models.StatusMember,
		Token:       tokA,
		Payload:     []byte(`{"update_id":1}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeSelfJoin, l.join(t, "-100", "A", tokA))

	events, err := l.journal.ListForSubject(ctx, "-100", "B", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, string(OutcomeCredited), events[0].Outcome)
	require.JSONEq(t, `{"update_id":1}`, string(events[0].Payload))

	events, err = l.journal.ListForSubject(ctx, "-100", "A", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, string(OutcomeSelfJoin), events[0].Outcome)
	require.Equal(t, tokA, events[0].Token)
}
