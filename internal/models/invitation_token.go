package models

import "time"

// InvitationToken is the single durable instant-join invitation held by one owner in one community.
// The token value is unique system-wide; (CommunityID, OwnerID) is unique as well.
type InvitationToken struct {
	Token       string    `gorm:"primaryKey;size:255" json:"token"`
	CommunityID string    `gorm:"size:64;not null;uniqueIndex:idx_invitation_tokens_owner,priority:1" json:"community_id"`
	OwnerID     string    `gorm:"size:64;not null;uniqueIndex:idx_invitation_tokens_owner,priority:2" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}
