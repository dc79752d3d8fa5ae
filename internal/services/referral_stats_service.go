package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/models"
)

const (
	defaultRecentLimit     = 20
	defaultLeaderboardSize = 10
	maxAggregateRows       = 100
)

// ReferralEntry is one credited invitee as shown in an owner's stats.
type ReferralEntry struct {
	ReferredID  string    `json:"referred_id"`
	Handle      string    `json:"handle,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Display     string    `json:"display"`
	CreditedAt  time.Time `json:"credited_at"`
}

// OwnerStats is the referral count and most recent invitees of one owner.
type OwnerStats struct {
	CommunityID string          `json:"community_id"`
	OwnerID     string          `json:"owner_id"`
	Count       int64           `json:"count"`
	Recent      []ReferralEntry `json:"recent"`
}

// LeaderboardEntry is one ranked referrer.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	OwnerID     string `json:"owner_id"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Display     string `json:"display"`
	Count       int64  `json:"count"`
}

// StatsOption customises ReferralStatsService behaviour.
type StatsOption func(*ReferralStatsService)

// WithRecentLimit sets the default number of recent invitees returned by StatsFor.
func WithRecentLimit(limit int) StatsOption {
	return func(s *ReferralStatsService) {
		if limit > 0 {
			s.recentLimit = clampLimit(limit, defaultRecentLimit, maxAggregateRows)
		}
	}
}

// WithLeaderboardSize sets the default number of leaderboard rows.
func WithLeaderboardSize(size int) StatsOption {
	return func(s *ReferralStatsService) {
		if size > 0 {
			s.leaderboardSize = clampLimit(size, defaultLeaderboardSize, maxAggregateRows)
		}
	}
}

// ReferralStatsService answers aggregate queries straight from the credit ledger.
type ReferralStatsService struct {
	db              *gorm.DB
	recentLimit     int
	leaderboardSize int
}

// NewReferralStatsService constructs a ReferralStatsService.
func NewReferralStatsService(db *gorm.DB, opts ...StatsOption) (*ReferralStatsService, error) {
	if db == nil {
		return nil, errors.New("stats service: db is required")
	}

	service := &ReferralStatsService{
		db:              db,
		recentLimit:     defaultRecentLimit,
		leaderboardSize: defaultLeaderboardSize,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

type recentRow struct {
	ReferredID  string
	CreditedAt  time.Time
	Handle      *string
	DisplayName *string
}

type leaderboardRow struct {
	OwnerID     string
	Credits     int64
	Handle      *string
	DisplayName *string
}

// StatsFor returns the owner's exact credit count and up to limit recent invitees,
// newest first with ties ordered by referred id. limit <= 0 uses the configured default.
func (s *ReferralStatsService) StatsFor(ctx context.Context, communityID, ownerID string, limit int) (*OwnerStats, error) {
	ctx = ensureContext(ctx)

	stats := &OwnerStats{
		CommunityID: normaliseID(communityID),
		OwnerID:     normaliseID(ownerID),
		Recent:      []ReferralEntry{},
	}
	limit = clampLimit(limit, s.recentLimit, maxAggregateRows)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ReferralCredit{}).
			Where("community_id = ? AND referrer_id = ?", stats.CommunityID, stats.OwnerID).
			Count(&stats.Count).Error; err != nil {
			return fmt.Errorf("count credits: %w", err)
		}
		if stats.Count == 0 {
			return nil
		}

		var rows []recentRow
		if err := tx.Table("referral_credits AS r").
			Select("r.referred_id AS referred_id, r.credited_at AS credited_at, i.handle AS handle, i.display_name AS display_name").
			Joins("LEFT JOIN individuals AS i ON i.id = r.referred_id").
			Where("r.community_id = ? AND r.referrer_id = ?", stats.CommunityID, stats.OwnerID).
			Order("r.credited_at DESC").
			Order("r.referred_id ASC").
			Limit(limit).
			Scan(&rows).Error; err != nil {
			return fmt.Errorf("list recent credits: %w", err)
		}

		for _, row := range rows {
			handle, name := deref(row.Handle), deref(row.DisplayName)
			stats.Recent = append(stats.Recent, ReferralEntry{
				ReferredID:  row.ReferredID,
				Handle:      handle,
				DisplayName: name,
				Display:     models.DisplayName(row.ReferredID, handle, name),
				CreditedAt:  row.CreditedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats service: %w", err)
	}
	return stats, nil
}

// Leaderboard ranks referrers by credit count, highest first, ties broken by ascending owner id.
// topK <= 0 uses the configured default.
func (s *ReferralStatsService) Leaderboard(ctx context.Context, communityID string, topK int) ([]LeaderboardEntry, error) {
	ctx = ensureContext(ctx)

	topK = clampLimit(topK, s.leaderboardSize, maxAggregateRows)

	var rows []leaderboardRow
	err := s.db.WithContext(ctx).Table("referral_credits AS r").
		Select("r.referrer_id AS owner_id, COUNT(*) AS credits, i.handle AS handle, i.display_name AS display_name").
		Joins("LEFT JOIN individuals AS i ON i.id = r.referrer_id").
		Where("r.community_id = ?", normaliseID(communityID)).
		Group("r.referrer_id, i.handle, i.display_name").
		Order("credits DESC").
		Order("r.referrer_id ASC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("stats service: leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		handle, name := deref(row.Handle), deref(row.DisplayName)
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			OwnerID:     row.OwnerID,
			Handle:      handle,
			DisplayName: name,
			Display:     models.DisplayName(row.OwnerID, handle, name),
			Count:       row.Credits,
		})
	}
	return entries, nil
}

// CreditTotals returns the number of stored credits per community.
func (s *ReferralStatsService) CreditTotals(ctx context.Context) (map[string]int64, error) {
	ctx = ensureContext(ctx)

	var rows []struct {
		CommunityID string
		Credits     int64
	}
	if err := s.db.WithContext(ctx).Model(&models.ReferralCredit{}).
		Select("community_id, COUNT(*) AS credits").
		Group("community_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("stats service: credit totals: %w", err)
	}

	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.CommunityID] = row.Credits
	}
	return totals, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
