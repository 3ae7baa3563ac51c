package models

import (
	"encoding/json"
	"time"

	"HC-ADMS/internal/lifecycle"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Agreement is one instantiated admissions contract for one resident.
// Requirements and Sections are a snapshot of the template at creation time,
// so the document a signer sees never silently changes when the template is
// edited.
type Agreement struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	ResidentID      string         `gorm:"not null;index" json:"resident_id"`
	TemplateID      string         `gorm:"not null;index" json:"template_id"`
	TemplateVersion int            `gorm:"not null" json:"template_version"`
	Title           string         `json:"title"`
	Requirements    datatypes.JSON `gorm:"type:json" json:"requirements"`
	Sections        datatypes.JSON `gorm:"type:json" json:"sections"`
	Status          string         `gorm:"default:'draft';index" json:"status"`
	Notes           string         `json:"notes"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`

	// Set only when the agreement is completed through the external signing
	// provider. Presence locks out local signature capture.
	ExternalDocumentID *string `gorm:"index" json:"external_document_id,omitempty"`
	// Raw provider vocabulary, stored for audit only. Never drives the state
	// machine directly.
	ExternalStatus string `json:"external_status,omitempty"`

	ArchivePDFPath string `json:"archive_pdf_path,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Signatures []Signature `gorm:"foreignKey:AgreementID" json:"signatures,omitempty"`
}

func (Agreement) TableName() string {
	return "agreements"
}

func (a *Agreement) RequirementList() ([]lifecycle.Requirement, error) {
	var reqs []lifecycle.Requirement
	if len(a.Requirements) == 0 {
		return reqs, nil
	}
	if err := json.Unmarshal(a.Requirements, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (a *Agreement) SectionList() ([]lifecycle.Section, error) {
	var sections []lifecycle.Section
	if len(a.Sections) == 0 {
		return sections, nil
	}
	if err := json.Unmarshal(a.Sections, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// SigningPath derives the agreement's path from the external document id.
func (a *Agreement) SigningPath() lifecycle.SigningPath {
	if a.ExternalDocumentID != nil && *a.ExternalDocumentID != "" {
		return lifecycle.PathExternal
	}
	return lifecycle.PathLocal
}

// Dispatched reports whether the agreement has been sent out for signing.
// Draft is the only pre-dispatch status.
func (a *Agreement) Dispatched() bool {
	return a.Status != string(lifecycle.StatusDraft)
}

// PastExpiry reports whether expiresAt has passed. Status is not consulted;
// the caller decides whether the expiry applies (fully signed agreements
// never expire).
func (a *Agreement) PastExpiry(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
