package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/models"
)

// AutoMigrate creates or updates the schema: individuals, invitation_tokens,
// referral_credits and the membership_events journal.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.Individual{},
		&models.InvitationToken{},
		&models.ReferralCredit{},
		&models.MembershipEvent{},
	)
}
