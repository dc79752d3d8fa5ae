package models

import "time"

// ReferralCredit records that ReferredID joined CommunityID through ReferrerID's token.
// The primary key (CommunityID, ReferredID) allows one credit per individual per community, ever.
type ReferralCredit struct {
	CommunityID string    `gorm:"primaryKey;size:64;index:idx_referral_credits_referrer,priority:1" json:"community_id"`
	ReferredID  string    `gorm:"primaryKey;size:64" json:"referred_id"`
	ReferrerID  string    `gorm:"size:64;not null;index:idx_referral_credits_referrer,priority:2" json:"referrer_id"`
	TokenUsed   string    `gorm:"size:255;not null" json:"token_used"`
	CreditedAt  time.Time `gorm:"not null" json:"credited_at"`
}
