package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/pkg/response"
)

// StatsReader serves referral aggregates.
type StatsReader interface {
	StatsFor(ctx context.Context, communityID, ownerID string, limit int) (*services.OwnerStats, error)
	Leaderboard(ctx context.Context, communityID string, topK int) ([]services.LeaderboardEntry, error)
}

// EventLister lists journaled transitions.
type EventLister interface {
	ListForSubject(ctx context.Context, communityID, subjectID string, limit int) ([]models.MembershipEvent, error)
}

// StatsHandler exposes the reporting queries.
type StatsHandler struct {
	stats  StatsReader
	events EventLister
}

// NewStatsHandler constructs a StatsHandler. events may be nil when journaling is disabled.
func NewStatsHandler(stats StatsReader, events EventLister) *StatsHandler {
	return &StatsHandler{stats: stats, events: events}
}

// Owner returns the referral count and recent invitees of one owner.
// GET /api/communities/:communityID/owners/:ownerID/stats
func (h *StatsHandler) Owner(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}
	ownerID, ok := pathID(c, "ownerID")
	if !ok {
		return
	}

	stats, err := h.stats.StatsFor(requestContext(c), communityID, ownerID, parseIntQuery(c, "limit", 0))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// Leaderboard returns the top referrers of a community.
// GET /api/communities/:communityID/leaderboard
func (h *StatsHandler) Leaderboard(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}

	entries, err := h.stats.Leaderboard(requestContext(c), communityID, parseIntQuery(c, "top", 0))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if entries == nil {
		entries = []services.LeaderboardEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"community_id": communityID,
		"entries":      entries,
	})
}

// Events lists the journaled transitions of one member.
// GET /api/communities/:communityID/members/:subjectID/events
func (h *StatsHandler) Events(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}
	subjectID, ok := pathID(c, "subjectID")
	if !ok {
		return
	}

	var events []models.MembershipEvent
	if h.events != nil {
		var err error
		events, err = h.events.ListForSubject(requestContext(c), communityID, subjectID, parseIntQuery(c, "limit", 0))
		if err != nil {
			writeServiceError(c, err)
			return
		}
	}
	if events == nil {
		events = []models.MembershipEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"community_id": communityID,
		"subject_id":   subjectID,
		"events":       events,
	})
}
