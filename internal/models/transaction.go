package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction actions.
const (
	ActionBorrow = "borrow"
	ActionReturn = "return"
)

// DefaultBookTitle is used when no title is supplied; the tracker has no
// book catalog, every loan is generically "a book".
const DefaultBookTitle = "General Book"

// Transaction is one ledger entry. A borrow row with IsReturned=false is
// the user's open loan; the matching return row is born closed and
// carries the same duration/lateness for ledger symmetry.
type Transaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UID       string    `gorm:"size:64;not null;index:idx_transactions_uid_ts,priority:1" json:"uid"`
	Action    string    `gorm:"size:10;not null" json:"action"`
	BookTitle string    `gorm:"size:255;not null" json:"bookTitle"`

	// Timestamp is the moment the physical transition was recorded.
	Timestamp time.Time `gorm:"not null;index:idx_transactions_uid_ts,priority:2" json:"timestamp"`

	IsReturned bool       `gorm:"not null;index" json:"isReturned"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
	Duration   *int       `json:"duration,omitempty"` // whole minutes, floored
	IsLate     bool       `gorm:"not null" json:"isLate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
