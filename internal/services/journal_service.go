package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/models"
)

const maxJournalPage = 200

// JournalService persists processed membership transitions for later inspection.
type JournalService struct {
	db *gorm.DB
}

// NewJournalService constructs a JournalService using the provided database handle.
func NewJournalService(db *gorm.DB) (*JournalService, error) {
	if db == nil {
		return nil, errors.New("journal service: db is required")
	}
	return &JournalService{db: db}, nil
}

// Record stores the event with its attribution outcome. The raw payload is kept verbatim when
// it is valid JSON; otherwise a summary of the event is stored instead.
func (s *JournalService) Record(ctx context.Context, event TransitionEvent, outcome Outcome) error {
	ctx = ensureContext(ctx)

	payload := datatypes.JSON(event.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		encoded, err := json.Marshal(map[string]any{
			"community_id": event.CommunityID,
			"subject":      event.Subject,
			"old_status":   event.OldStatus,
			"new_status":   event.NewStatus,
			"token":        event.Token,
		})
		if err != nil {
			return fmt.Errorf("journal service: marshal payload: %w", err)
		}
		payload = encoded
	}

	entry := models.MembershipEvent{
		CommunityID: normaliseID(event.CommunityID),
		SubjectID:   normaliseID(event.Subject.ID),
		OldStatus:   event.OldStatus,
		NewStatus:   event.NewStatus,
		Token:       event.Token,
		Outcome:     string(outcome),
		Payload:     payload,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal service: record: %w", err)
	}
	return nil
}

// ListForSubject returns journaled transitions for one individual, newest first.
func (s *JournalService) ListForSubject(ctx context.Context, communityID, subjectID string, limit int) ([]models.MembershipEvent, error) {
	ctx = ensureContext(ctx)

	var events []models.MembershipEvent
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND subject_id = ?", normaliseID(communityID), normaliseID(subjectID)).
		Order("created_at DESC").
		Order("id ASC").
		Limit(clampLimit(limit, 50, maxJournalPage)).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("journal service: list: %w", err)
	}
	return events, nil
}
