package models

import (
	"encoding/json"
	"time"

	"HC-ADMS/internal/lifecycle"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AgreementTemplate is one immutable version of an admissions agreement.
// Editing a referenced template never mutates the row; a new row with the
// same FamilyID and Version+1 is created instead.
type AgreementTemplate struct {
	ID                    string         `gorm:"primaryKey" json:"id"`
	FamilyID              string         `gorm:"not null;index" json:"family_id"`
	Version               int            `gorm:"not null" json:"version"`
	Title                 string         `gorm:"not null" json:"title"`
	Sections              datatypes.JSON `gorm:"type:json" json:"sections"`
	SignatureRequirements datatypes.JSON `gorm:"type:json" json:"signature_requirements"`
	ExternalTemplateID    string         `json:"external_template_id,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AgreementTemplate) TableName() string {
	return "agreement_templates"
}

func (t *AgreementTemplate) RequirementList() ([]lifecycle.Requirement, error) {
	var reqs []lifecycle.Requirement
	if len(t.SignatureRequirements) == 0 {
		return reqs, nil
	}
	if err := json.Unmarshal(t.SignatureRequirements, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (t *AgreementTemplate) SectionList() ([]lifecycle.Section, error) {
	var sections []lifecycle.Section
	if len(t.Sections) == 0 {
		return sections, nil
	}
	if err := json.Unmarshal(t.Sections, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}
