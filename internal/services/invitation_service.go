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

const defaultInviteLabelPrefix = "ref-"

// InviteAuthority mints instant-join invitations for a community. Implementations
// should return *AuthorityError so callers can tell missing rights from transport trouble.
type InviteAuthority interface {
	CreateInviteLink(ctx context.Context, communityID, label string) (string, error)
}

// InviteAuthorityFunc adapts a function to InviteAuthority.
type InviteAuthorityFunc func(ctx context.Context, communityID, label string) (string, error)

// CreateInviteLink calls f.
func (f InviteAuthorityFunc) CreateInviteLink(ctx context.Context, communityID, label string) (string, error) {
	return f(ctx, communityID, label)
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInviteLabelPrefix overrides the label prefix attached to minted invitations.
func WithInviteLabelPrefix(prefix string) InvitationOption {
	return func(s *InvitationService) {
		s.labelPrefix = prefix
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService is the invitation registry: one durable token per (community, owner).
type InvitationService struct {
	db          *gorm.DB
	authority   InviteAuthority
	labelPrefix string
	now         func() time.Time
	log         *zap.Logger
}

// NewInvitationService constructs an InvitationService. authority may be nil, in which case
// only existing tokens can be returned.
func NewInvitationService(db *gorm.DB, authority InviteAuthority, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:          db,
		authority:   authority,
		labelPrefix: defaultInviteLabelPrefix,
		now:         time.Now,
		log:         logger.WithModule("invitations"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// GetOrCreateToken returns the owner's token for the community, minting one through the
// authority on first request. It reports whether this call stored a new token.
func (s *InvitationService) GetOrCreateToken(ctx context.Context, communityID, ownerID string) (*models.InvitationToken, bool, error) {
	ctx = ensureContext(ctx)

	communityID = normaliseID(communityID)
	ownerID = normaliseID(ownerID)
	if communityID == "" || ownerID == "" {
		return nil, false, errors.New("invitation service: community and owner are required")
	}

	existing, err := s.TokenFor(ctx, communityID, ownerID)
	switch {
	case err == nil:
		metrics.TokenRequests.WithLabelValues("existing").Inc()
		return existing, false, nil
	case !errors.Is(err, ErrTokenNotFound):
		metrics.TokenRequests.WithLabelValues("error").Inc()
		return nil, false, err
	}

	if s.authority == nil {
		metrics.TokenRequests.WithLabelValues("error").Inc()
		return nil, false, ErrNoAuthority
	}

	minted, err := s.authority.CreateInviteLink(ctx, communityID, s.label(ownerID))
	if err == nil && strings.TrimSpace(minted) == "" {
		err = errors.New("authority returned an empty invitation")
	}
	if err != nil {
		authErr := asAuthorityError(err)
		metrics.TokenRequests.WithLabelValues("error").Inc()
		metrics.AuthorityFailures.WithLabelValues(string(authErr.Kind)).Inc()
		s.log.Warn("invitation authority call failed",
			zap.String("community", communityID),
			zap.String("owner", ownerID),
			zap.String("kind", string(authErr.Kind)),
			zap.Error(err),
		)
		return nil, false, authErr
	}

	token := models.InvitationToken{
		Token:       strings.TrimSpace(minted),
		CommunityID: communityID,
		OwnerID:     ownerID,
		CreatedAt:   s.now().UTC(),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&token)
	if res.Error != nil && !isUniqueConstraintError(res.Error) {
		metrics.TokenRequests.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("invitation service: store token: %w", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 {
		metrics.TokenRequests.WithLabelValues("created").Inc()
		s.log.Info("invitation token created",
			zap.String("community", communityID),
			zap.String("owner", ownerID),
		)
		return &token, true, nil
	}

	// Another request stored a row first. The freshly minted invitation stays orphaned at the authority.
	stored, err := s.TokenFor(ctx, communityID, ownerID)
	if err != nil {
		metrics.TokenRequests.WithLabelValues("error").Inc()
		if errors.Is(err, ErrTokenNotFound) {
			return nil, false, ErrTokenCollision
		}
		return nil, false, err
	}

	s.log.Info("concurrent token request collapsed onto stored token",
		zap.String("community", communityID),
		zap.String("owner", ownerID),
	)
	metrics.TokenRequests.WithLabelValues("existing").Inc()
	return stored, false, nil
}

// TokenFor returns the stored token for (community, owner) without minting.
func (s *InvitationService) TokenFor(ctx context.Context, communityID, ownerID string) (*models.InvitationToken, error) {
	ctx = ensureContext(ctx)

	var token models.InvitationToken
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND owner_id = ?", normaliseID(communityID), normaliseID(ownerID)).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("invitation service: find token: %w", err)
	}
	return &token, nil
}

// Resolve maps a token used inside communityID back to its owner.
func (s *InvitationService) Resolve(ctx context.Context, communityID, token string) (string, error) {
	ctx = ensureContext(ctx)

	owner, found, err := resolveTokenOwner(s.db.WithContext(ctx), communityID, token)
	if err != nil {
		return "", fmt.Errorf("invitation service: resolve token: %w", err)
	}
	if !found {
		return "", ErrTokenNotFound
	}
	return owner, nil
}

func (s *InvitationService) label(ownerID string) string {
	return s.labelPrefix + ownerID
}

func resolveTokenOwner(tx *gorm.DB, communityID, token string) (string, bool, error) {
	communityID = normaliseID(communityID)
	token = strings.TrimSpace(token)
	if communityID == "" || token == "" {
		return "", false, nil
	}

	var row models.InvitationToken
	err := tx.Where("token = ? AND community_id = ?", token, communityID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.OwnerID, true, nil
}
