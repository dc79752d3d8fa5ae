package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/handlers/testutil"
	"github.com/charlesng35/refledger/internal/services"
)

type leaderboardPayload struct {
	CommunityID string                      `json:"community_id"`
	Entries     []services.LeaderboardEntry `json:"entries"`
}

type eventsPayload struct {
	SubjectID string `json:"subject_id"`
	Events    []struct {
		Outcome   string `json:"outcome"`
		NewStatus string `json:"new_status"`
	} `json:"events"`
}

func seedReferrals(t *testing.T, env *testutil.Env, owner string, invitees ...string) {
	t.Helper()
	token := mintToken(t, env, "c1", owner)
	for _, invitee := range invitees {
		code, result := postTransition(t, env, "c1", joinBody(invitee, token))
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "credited", result.Outcome)
	}
}

func TestOwnerStats(t *testing.T) {
	env := testutil.NewEnv(t)
	reader := env.AccessToken("reader", iauth.ScopeReferralsRead)

	resp := env.Request(http.MethodGet, "/api/communities/c1/owners/alice/stats", nil, reader)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var empty services.OwnerStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &empty)
	require.Zero(t, empty.Count)
	require.NotNil(t, empty.Recent)
	require.Empty(t, empty.Recent)

	seedReferrals(t, env, "alice", "u1", "u2", "u3")

	resp = env.Request(http.MethodGet, "/api/communities/c1/owners/alice/stats?limit=2", nil, reader)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var stats services.OwnerStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &stats)
	require.Equal(t, int64(3), stats.Count)
	require.Len(t, stats.Recent, 2)
	require.Equal(t, "u3", stats.Recent[0].ReferredID)
	require.Equal(t, "Subject u3", stats.Recent[0].Display)
}

func TestLeaderboard(t *testing.T) {
	env := testutil.NewEnv(t)
	seedReferrals(t, env, "alice", "u1")
	seedReferrals(t, env, "bob", "u2", "u3")
	seedReferrals(t, env, "carol", "u4")

	resp := env.Request(http.MethodGet, "/api/communities/c1/leaderboard?top=2", nil, env.FullAccessToken())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var board leaderboardPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &board)
	require.Equal(t, "c1", board.CommunityID)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "bob", board.Entries[0].OwnerID)
	require.Equal(t, int64(2), board.Entries[0].Count)
	require.Equal(t, 1, board.Entries[0].Rank)
	require.Equal(t, "alice", board.Entries[1].OwnerID)
	require.Equal(t, 2, board.Entries[1].Rank)

	resp = env.Request(http.MethodGet, "/api/communities/empty/leaderboard", nil, env.FullAccessToken())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), `"entries":[]`)
}

func TestMemberEvents(t *testing.T) {
	env := testutil.NewEnv(t)
	seedReferrals(t, env, "alice", "bob")

	code, _ := postTransition(t, env, "c1", map[string]any{
		"subject":    map[string]string{"id": "bob"},
		"old_status": "member",
		"new_status": "kicked",
	})
	require.Equal(t, http.StatusOK, code)

	resp := env.Request(http.MethodGet, "/api/communities/c1/members/bob/events", nil, env.FullAccessToken())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var payload eventsPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &payload)
	require.Equal(t, "bob", payload.SubjectID)
	require.Len(t, payload.Events, 2)

	outcomes := []string{payload.Events[0].Outcome, payload.Events[1].Outcome}
	require.ElementsMatch(t, []string{"credited", "not_a_join"}, outcomes)

	resp = env.Request(http.MethodGet, "/api/communities/c1/members/bob/events?limit=1", nil, env.FullAccessToken())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &payload)
	require.Len(t, payload.Events, 1)
}

func TestStatsRequireReadScope(t *testing.T) {
	env := testutil.NewEnv(t)
	writer := env.AccessToken("writer", iauth.ScopeReferralsWrite)

	for _, path := range []string{
		"/api/communities/c1/owners/alice/stats",
		"/api/communities/c1/leaderboard",
		"/api/communities/c1/members/alice/events",
		"/api/monitoring/jobs",
	} {
		resp := env.Request(http.MethodGet, path, nil, writer)
		require.Equal(t, http.StatusForbidden, resp.Code, fmt.Sprintf("%s: %s", path, resp.Body.String()))
	}
}

func TestMonitoringJobs(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Jobs.Register("credit_gauge")

	resp := env.Request(http.MethodGet, "/api/monitoring/jobs", nil, env.FullAccessToken())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), `"job":"credit_gauge"`)
}
