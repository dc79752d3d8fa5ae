package models

import "strings"

// MemberStatus is the closed set of membership statuses an event may carry.
type MemberStatus string

const (
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
	StatusRestricted    MemberStatus = "restricted"
	StatusPending       MemberStatus = "pending"
	StatusMember        MemberStatus = "member"
	StatusAdministrator MemberStatus = "administrator"
	StatusCreator       MemberStatus = "creator"
	StatusUnknown       MemberStatus = "unknown"
)

// StatusBucket groups statuses for the join rule.
type StatusBucket string

const (
	BucketNotMember     StatusBucket = "not_member"
	BucketPending       StatusBucket = "pending"
	BucketMember        StatusBucket = "member"
	BucketAdministrator StatusBucket = "administrator"
)

// statusBuckets is the authoritative partition. Restricted counts as not-a-member
// and creators share the administrator bucket. Anything unmapped is treated as not-a-member.
var statusBuckets = map[MemberStatus]StatusBucket{
	StatusLeft:          BucketNotMember,
	StatusKicked:        BucketNotMember,
	StatusRestricted:    BucketNotMember,
	StatusUnknown:       BucketNotMember,
	StatusPending:       BucketPending,
	StatusMember:        BucketMember,
	StatusAdministrator: BucketAdministrator,
	StatusCreator:       BucketAdministrator,
}

// ParseMemberStatus normalises a raw status string. Unrecognised values map to StatusUnknown.
// "banned" is accepted as an alias of kicked.
func ParseMemberStatus(raw string) MemberStatus {
	status := MemberStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "banned":
		return StatusKicked
	case "owner":
		return StatusCreator
	}
	if _, ok := statusBuckets[status]; ok {
		return status
	}
	return StatusUnknown
}

// Bucket returns the bucket the status belongs to.
func (s MemberStatus) Bucket() StatusBucket {
	if bucket, ok := statusBuckets[s]; ok {
		return bucket
	}
	return BucketNotMember
}

// IsGenuineJoin reports whether a transition from old to next is a new join:
// old must be in the not-a-member bucket and next must be exactly member.
// Promotions, approvals of pending requests and lateral changes do not qualify.
func IsGenuineJoin(old, next MemberStatus) bool {
	return old.Bucket() == BucketNotMember && next == StatusMember
}
