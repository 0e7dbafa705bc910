package model

import (
	"time"
)

// Profile is a registered subscription source and the outcome of its last refresh.
type Profile struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	URL       string
	Collector string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Last refresh
	ProxyCount  int
	UserInfo    string // Raw subscription-userinfo header, if any
	LastError   string
	RefreshedAt *time.Time // Last successful refresh

	// Relationships
	Updates []UpdateRecord `gorm:"foreignKey:ProfileID"`
}

// UpdateRecord is one refresh attempt.
type UpdateRecord struct {
	ID         uint `gorm:"primaryKey"`
	ProfileID  uint `gorm:"index"`
	Success    bool
	ProxyCount int
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}
