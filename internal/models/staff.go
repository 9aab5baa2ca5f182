package models

import (
	"time"

	"github.com/google/uuid"
)

// Staff roles.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Staff is a dashboard operator account. Badge holders never log in;
// only the staff surface (user listing, exports, policy) authenticates.
type Staff struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaffToken stores hashed, rotating refresh tokens.
type StaffToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StaffID   uuid.UUID `gorm:"type:uuid;not null;index" json:"staff_id"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Revoked   bool      `gorm:"not null" json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	Staff     Staff     `gorm:"foreignKey:StaffID" json:"-"`
}
