package domain

import "time"

// Match types recorded against a green result.
const (
	MatchTypeIP   = "ip"
	MatchTypeASN  = "as"
	MatchTypeNone = "none"
)

// GreenDomain caches the outcome of a green lookup for a domain.
type GreenDomain struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	URL             string    `gorm:"size:255;uniqueIndex;not null"`
	HostedByID      uint64    `gorm:"not null;index"`
	HostedBy        string    `gorm:"size:255;not null;default:''"`
	HostedByWebsite string    `gorm:"size:255;not null;default:''"`
	Partner         string    `gorm:"size:255;not null;default:''"`
	Green           bool      `gorm:"not null;default:false"`
	MatchType       string    `gorm:"size:8;not null;default:''"`
	MatchID         uint64    `gorm:"not null;default:0"`
	Modified        time.Time `gorm:"not null;index"`
}

// Greencheck is a log entry written for every full lookup.
type Greencheck struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	URL        string    `gorm:"size:255;not null;index"`
	IP         string    `gorm:"size:45;not null;default:''"`
	Green      bool      `gorm:"not null;default:false"`
	ProviderID uint64    `gorm:"not null;default:0"`
	MatchType  string    `gorm:"size:8;not null;default:''"`
	CheckedAt  time.Time `gorm:"not null;index"`
}
