package models

import "gorm.io/datatypes"

// MembershipEvent journals one processed membership transition together with its outcome.
type MembershipEvent struct {
	BaseModel

	CommunityID string         `gorm:"size:64;not null;index:idx_membership_events_subject,priority:1" json:"community_id"`
	SubjectID   string         `gorm:"size:64;not null;index:idx_membership_events_subject,priority:2" json:"subject_id"`
	OldStatus   MemberStatus   `gorm:"size:32" json:"old_status"`
	NewStatus   MemberStatus   `gorm:"size:32" json:"new_status"`
	Token       string         `gorm:"size:255" json:"token,omitempty"`
	Outcome     string         `gorm:"size:32;not null;index" json:"outcome"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
}
