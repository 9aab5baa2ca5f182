package models

import "time"

// Setting is a key/value configuration row. The lending policy
// (late threshold, block duration) lives here so it can be adjusted at
// runtime without a redeploy.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
