package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/refledger/internal/models"
)

// IdentityOption customises IdentityService behaviour.
type IdentityOption func(*IdentityService)

// WithIdentityClock injects a custom clock primarily for testing.
func WithIdentityClock(clock func() time.Time) IdentityOption {
	return func(s *IdentityService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// IdentityService is the directory of known individuals.
type IdentityService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *gorm.DB, opts ...IdentityOption) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}

	service := &IdentityService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Upsert records the individual if the id is new. Existing rows are left untouched,
// so the first observed handle and name win. It reports whether a row was inserted.
func (s *IdentityService) Upsert(ctx context.Context, individual models.Individual) (bool, error) {
	ctx = ensureContext(ctx)

	created, err := upsertIndividual(s.db.WithContext(ctx), individual, s.now())
	if err != nil {
		return false, fmt.Errorf("identity service: upsert: %w", err)
	}
	return created, nil
}

// Lookup returns the stored individual.
func (s *IdentityService) Lookup(ctx context.Context, id string) (*models.Individual, error) {
	ctx = ensureContext(ctx)

	id = normaliseID(id)
	if id == "" {
		return nil, ErrIndividualNotFound
	}

	var individual models.Individual
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&individual).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIndividualNotFound
		}
		return nil, fmt.Errorf("identity service: lookup: %w", err)
	}
	return &individual, nil
}

func upsertIndividual(tx *gorm.DB, individual models.Individual, now time.Time) (bool, error) {
	individual.ID = normaliseID(individual.ID)
	if individual.ID == "" {
		return false, errors.New("individual id is required")
	}
	individual.Handle = strings.TrimPrefix(strings.TrimSpace(individual.Handle), "@")
	individual.DisplayName = strings.TrimSpace(individual.DisplayName)
	if individual.FirstSeen.IsZero() {
		individual.FirstSeen = now.UTC()
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&individual)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
