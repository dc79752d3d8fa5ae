package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/pkg/logger"
	"github.com/charlesng35/refledger/pkg/metrics"
)

// Outcome is the terminal result of processing one membership transition.
type Outcome string

const (
	OutcomeCredited        Outcome = "credited"
	OutcomeNotJoin         Outcome = "not_a_join"
	OutcomeNoToken         Outcome = "no_token"
	OutcomeUnresolvedToken Outcome = "unresolved_token"
	OutcomeSelfJoin        Outcome = "self_join"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeFailed          Outcome = "failed"
)

var errDuplicateCredit = errors.New("attribution: credit already exists")

// TransitionEvent is one membership status change observed in a community.
type TransitionEvent struct {
	CommunityID string
	Subject     models.Individual
	OldStatus   models.MemberStatus
	NewStatus   models.MemberStatus
	// Token is the invitation used to join, empty for public or unlinked joins.
	Token string
	// Payload optionally carries the raw upstream update for the journal.
	Payload []byte
}

// AttributionResult describes what processing a transition did.
type AttributionResult struct {
	Outcome Outcome
	Credit  *models.ReferralCredit
}

// AttributionOption customises AttributionService behaviour.
type AttributionOption func(*AttributionService)

// WithAttributionClock injects a custom clock primarily for testing.
func WithAttributionClock(clock func() time.Time) AttributionOption {
	return func(s *AttributionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithJournal journals every processed transition. Journal failures never change the outcome.
func WithJournal(journal *JournalService) AttributionOption {
	return func(s *AttributionService) {
		s.journal = journal
	}
}

// AttributionService credits genuine joins to the owner of the invitation token used.
type AttributionService struct {
	db      *gorm.DB
	journal *JournalService
	now     func() time.Time
	log     *zap.Logger
}

// NewAttributionService constructs an AttributionService.
func NewAttributionService(db *gorm.DB, opts ...AttributionOption) (*AttributionService, error) {
	if db == nil {
		return nil, errors.New("attribution service: db is required")
	}

	service := &AttributionService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("attribution"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleTransition processes one event inside a single transaction. Rejections such as
// missing or foreign tokens, self-joins and repeated joins are outcomes, not errors.
// Non-joins and joins without a resolvable token write nothing. Storage failures are
// returned and nothing is committed.
func (s *AttributionService) HandleTransition(ctx context.Context, event TransitionEvent) (AttributionResult, error) {
	ctx = ensureContext(ctx)

	event.CommunityID = normaliseID(event.CommunityID)
	event.Subject.ID = normaliseID(event.Subject.ID)
	event.Token = strings.TrimSpace(event.Token)
	if event.CommunityID == "" || event.Subject.ID == "" {
		return AttributionResult{}, ErrInvalidEvent
	}

	fields := []zap.Field{
		zap.String("community", event.CommunityID),
		zap.String("subject", event.Subject.ID),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("new_status", string(event.NewStatus)),
	}

	var result AttributionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()

		if !models.IsGenuineJoin(event.OldStatus, event.NewStatus) {
			result.Outcome = OutcomeNotJoin
			return nil
		}
		if event.Token == "" {
			result.Outcome = OutcomeNoToken
			return nil
		}

		ownerID, found, err := resolveTokenOwner(tx, event.CommunityID, event.Token)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if !found {
			result.Outcome = OutcomeUnresolvedToken
			return nil
		}

		// Only attributable joins reach the directory.
		if _, err := upsertIndividual(tx, event.Subject, now); err != nil {
			return fmt.Errorf("upsert subject: %w", err)
		}
		if ownerID == event.Subject.ID {
			result.Outcome = OutcomeSelfJoin
			return nil
		}

		credit := models.ReferralCredit{
			CommunityID: event.CommunityID,
			ReferredID:  event.Subject.ID,
			ReferrerID:  ownerID,
			TokenUsed:   event.Token,
			CreditedAt:  now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&credit)
		if res.Error != nil {
			if isUniqueConstraintError(res.Error) {
				return errDuplicateCredit
			}
			return fmt.Errorf("insert credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		result.Outcome = OutcomeCredited
		result.Credit = &credit
		return nil
	})
	if errors.Is(err, errDuplicateCredit) {
		result, err = AttributionResult{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		metrics.TransitionsProcessed.WithLabelValues(string(OutcomeFailed)).Inc()
		s.log.Error("membership transition failed", append(fields, zap.Error(err))...)
		s.record(ctx, event, OutcomeFailed)
		return AttributionResult{}, fmt.Errorf("attribution service: %w", err)
	}

	metrics.TransitionsProcessed.WithLabelValues(string(result.Outcome)).Inc()
	switch result.Outcome {
	case OutcomeCredited:
		metrics.CreditsCreated.Inc()
		s.log.Info("referral credited",
			zap.String("community", result.Credit.CommunityID),
			zap.String("referrer", result.Credit.ReferrerID),
			zap.String("referred", result.Credit.ReferredID),
		)
	case OutcomeNotJoin:
		s.log.Debug("transition ignored", fields...)
	case OutcomeDuplicate:
		s.log.Info("duplicate join ignored", fields...)
	default:
		s.log.Info("join not attributable", append(fields, zap.String("outcome", string(result.Outcome)))...)
	}

	s.record(ctx, event, result.Outcome)
	return result, nil
}

func (s *AttributionService) record(ctx context.Context, event TransitionEvent, outcome Outcome) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, event, outcome); err != nil {
		s.log.Warn("journal write failed", zap.String("subject", event.Subject.ID), zap.Error(err))
	}
}
