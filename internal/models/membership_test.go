package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMemberStatus(t *testing.T) {
	cases := map[string]MemberStatus{
		"left":          StatusLeft,
		" KICKED ":      StatusKicked,
		"banned":        StatusKicked,
		"restricted":    StatusRestricted,
		"pending":       StatusPending,
		"member":        StatusMember,
		"administrator": StatusAdministrator,
		"creator":       StatusCreator,
		"owner":         StatusCreator,
		"":              StatusUnknown,
		"ghost":         StatusUnknown,
	}
	for raw, want := range cases {
		require.Equal(t, want, ParseMemberStatus(raw), "raw=%q", raw)
	}
}

func TestStatusBuckets(t *testing.T) {
	require.Equal(t, BucketNotMember, StatusLeft.Bucket())
	require.Equal(t, BucketNotMember, StatusKicked.Bucket())
	require.Equal(t, BucketNotMember, StatusRestricted.Bucket())
	require.Equal(t, BucketNotMember, StatusUnknown.Bucket())
	require.Equal(t, BucketNotMember, MemberStatus("unmapped").Bucket())
	require.Equal(t, BucketPending, StatusPending.Bucket())
	require.Equal(t, BucketMember, StatusMember.Bucket())
	require.Equal(t, BucketAdministrator, StatusAdministrator.Bucket())
	require.Equal(t, BucketAdministrator, StatusCreator.Bucket())
}

func TestIsGenuineJoin(t *testing.T) {
	joins := []MemberStatus{StatusLeft, StatusKicked, StatusRestricted, StatusUnknown}
	for _, old := range joins {
		require.True(t, IsGenuineJoin(old, StatusMember), "old=%s", old)
	}

	notJoins := [][2]MemberStatus{
		{StatusPending, StatusMember},
		{StatusMember, StatusMember},
		{StatusAdministrator, StatusMember},
		{StatusLeft, StatusAdministrator},
		{StatusLeft, StatusCreator},
		{StatusMember, StatusLeft},
		{StatusLeft, StatusPending},
		{StatusLeft, StatusRestricted},
	}
	for _, pair := range notJoins {
		require.False(t, IsGenuineJoin(pair[0], pair[1]), "old=%s new=%s", pair[0], pair[1])
	}
}

func TestIndividualDisplay(t *testing.T) {
	require.Equal(t, "@alice", Individual{ID: "1", Handle: "alice", DisplayName: "Alice"}.Display())
	require.Equal(t, "Alice", Individual{ID: "1", DisplayName: "Alice"}.Display())
	require.Equal(t, "1", Individual{ID: "1"}.Display())
}
