package models

import (
	"time"

	"github.com/google/uuid"
)

// User statuses.
const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

// User is a badge holder. UID is the identifier read from the physical
// RFID tag, stored uppercased and immutable after creation. Defaults
// (placeholder name, active status, zero counters) are assigned by the
// engine when the row is created, not by the schema.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UID   string    `gorm:"size:64;not null;uniqueIndex:idx_users_uid" json:"uid"`
	Name  string    `gorm:"size:255;not null" json:"name"`
	Email *string   `gorm:"size:255;uniqueIndex:idx_users_email" json:"email,omitempty"`
	Phone string    `gorm:"size:32" json:"phone,omitempty"`

	Status       string     `gorm:"size:20;not null" json:"status"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`

	// CurrentlyBorrowing is true iff exactly one open borrow transaction
	// exists for this UID.
	CurrentlyBorrowing bool `gorm:"not null" json:"currentlyBorrowing"`
	TotalBorrowed      int  `gorm:"not null" json:"totalBorrowed"`
	TotalReturned      int  `gorm:"not null" json:"totalReturned"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
