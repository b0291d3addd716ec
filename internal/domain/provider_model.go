package domain

import "time"

// Accounting models a provider can use to back its green claims.
const (
	ModelGreenEnergy  = "groeneenergie"
	ModelCompensation = "compensatie"
	ModelMixed        = "mixed"
)

// Provider is a hosting company or datacenter operator listed in the directory.
type Provider struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Name    string `gorm:"size:255;not null;index"`
	Website string `gorm:"size:255;not null;default:''"`

	// Country holds the ISO 3166-1 alpha-2 code.
	Country string `gorm:"size:2;not null;default:'';index"`
	City    string `gorm:"size:255;not null;default:''"`

	Partner       string     `gorm:"size:255;not null;default:''"`
	Model         string     `gorm:"size:32;not null;default:'compensatie'"`
	ShowOnWebsite bool       `gorm:"not null;default:false;index"`
	Archived      bool       `gorm:"not null;default:false;index"`
	Services      StringList `gorm:"type:text"`

	Documents []SupportingDocument `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// IsPartner reports whether the provider carries a partner level.
func (p *Provider) IsPartner() bool {
	switch p.Partner {
	case "", "None":
		return false
	default:
		return true
	}
}

// SupportingDocument is evidence backing a provider's sustainability claims.
type SupportingDocument struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	ProviderID  uint64    `gorm:"not null;index"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	URL         string    `gorm:"size:1024;not null;default:''"`
	Attachment  string    `gorm:"size:1024;not null;default:''"`
	Type        string    `gorm:"size:64;not null;default:''"`
	ValidFrom   time.Time `gorm:"not null"`
	ValidTo     time.Time `gorm:"not null"`
	Public      bool      `gorm:"not null"`
}

// User is the slice of an account the directory needs: its provider link.
type User struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	Email      string  `gorm:"size:255;uniqueIndex;not null"`
	ProviderID *uint64 `gorm:"index"`
}
