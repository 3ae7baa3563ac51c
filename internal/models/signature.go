package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SignatureMethodDrawn    = "drawn"
	SignatureMethodExternal = "external"
)

// Signature is one captured signature in the append-only ledger. A later
// signature for the same (agreement, role) supersedes the earlier one rather
// than duplicating it; completion logic only looks at non-superseded rows.
type Signature struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	AgreementID      string         `gorm:"not null;index" json:"agreement_id"`
	SignerRole       string         `gorm:"not null" json:"signer_role"`
	SignerName       string         `gorm:"not null" json:"signer_name"`
	SignerContactRef string         `json:"signer_contact_ref,omitempty"`
	ImagePath        string         `json:"image_path"`
	Method           string         `gorm:"not null" json:"method"`
	Superseded       bool           `gorm:"default:false;index" json:"superseded"`
	SignedAt         time.Time      `json:"signed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Signature) TableName() string {
	return "signatures"
}
