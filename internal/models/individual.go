package models

import "time"

// Individual is a person known to the deployment by a stable identifier.
// Rows are written once and never updated or deleted.
type Individual struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Handle      string    `gorm:"size:64" json:"handle,omitempty"`
	DisplayName string    `gorm:"size:256" json:"display_name,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
}

// Display renders the individual as "@handle", falling back to the display name and then the raw id.
func (i Individual) Display() string {
	return DisplayName(i.ID, i.Handle, i.DisplayName)
}

// DisplayName applies the handle -> display name -> id fallback to loose fields,
// as returned by aggregate queries joining the individuals table.
func DisplayName(id, handle, displayName string) string {
	switch {
	case handle != "":
		return "@" + handle
	case displayName != "":
		return displayName
	default:
		return id
	}
}
