package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"HC-ADMS/internal"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateService struct{}

func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

type TemplateInput struct {
	Title                 string                  `json:"title"`
	Sections              []lifecycle.Section     `json:"sections"`
	SignatureRequirements []lifecycle.Requirement `json:"signature_requirements"`
	ExternalTemplateID    string                  `json:"external_template_id"`
}

func (in *TemplateInput) validate() error {
	if in.Title == "" {
		return fmt.Errorf("template title is required")
	}
	if len(in.SignatureRequirements) == 0 {
		return fmt.Errorf("at least one signature requirement is required")
	}
	seen := make(map[string]bool)
	for _, r := range in.SignatureRequirements {
		if r.Role == "" {
			return fmt.Errorf("signature requirement role is required")
		}
		if seen[r.Role] {
			return fmt.Errorf("duplicate signature requirement role %q", r.Role)
		}
		seen[r.Role] = true
	}
	return nil
}

// CreateTemplate starts a new template family at version 1.
func (s *TemplateService) CreateTemplate(in TemplateInput) (*models.AgreementTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	template, err := buildTemplate(uuid.New().String(), 1, in)
	if err != nil {
		return nil, err
	}

	if err := internal.DB.Create(template).Error; err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	return template, nil
}

// UpdateTemplate never mutates an existing version: it appends version+1 to
// the same family, so agreements that snapshotted an older version are
// untouched.
func (s *TemplateService) UpdateTemplate(templateID string, in TemplateInput) (*models.AgreementTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	current, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	var latest models.AgreementTemplate
	if err := internal.DB.Where("family_id = ?", current.FamilyID).
		Order("version DESC").First(&latest).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve latest version: %w", err)
	}

	next, err := buildTemplate(current.FamilyID, latest.Version+1, in)
	if err != nil {
		return nil, err
	}

	if err := internal.DB.Create(next).Error; err != nil {
		return nil, fmt.Errorf("failed to save template version: %w", err)
	}
	return next, nil
}

func buildTemplate(familyID string, version int, in TemplateInput) (*models.AgreementTemplate, error) {
	sectionsJSON, err := json.Marshal(in.Sections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sections: %w", err)
	}
	reqsJSON, err := json.Marshal(in.SignatureRequirements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signature requirements: %w", err)
	}

	id := familyID
	if version > 1 {
		id = uuid.New().String()
	}

	return &models.AgreementTemplate{
		ID:                    id,
		FamilyID:              familyID,
		Version:               version,
		Title:                 in.Title,
		Sections:              sectionsJSON,
		SignatureRequirements: reqsJSON,
		ExternalTemplateID:    in.ExternalTemplateID,
	}, nil
}

func (s *TemplateService) GetTemplate(templateID string) (*models.AgreementTemplate, error) {
	var template models.AgreementTemplate
	if err := internal.DB.First(&template, "id = ?", templateID).Error; err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	return &template, nil
}

// ListTemplates returns the latest version of every family.
func (s *TemplateService) ListTemplates() ([]models.AgreementTemplate, error) {
	var templates []models.AgreementTemplate
	sub := internal.DB.Model(&models.AgreementTemplate{}).
		Select("family_id, MAX(version) AS version").
		Group("family_id")
	if err := internal.DB.
		Joins("JOIN (?) latest ON agreement_templates.family_id = latest.family_id AND agreement_templates.version = latest.version", sub).
		Order("agreement_templates.updated_at DESC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate soft deletes a template version. A version referenced by any
// agreement stays: its snapshot semantics make deletion unnecessary, and
// keeping it preserves the audit trail.
func (s *TemplateService) DeleteTemplate(templateID string) error {
	template, err := s.GetTemplate(templateID)
	if err != nil {
		return err
	}

	var refs int64
	if err := internal.DB.Model(&models.Agreement{}).
		Where("template_id = ?", templateID).Count(&refs).Error; err != nil {
		return fmt.Errorf("failed to count agreement references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("template %s is referenced by %d agreements and cannot be deleted", templateID, refs)
	}

	return internal.DB.Delete(template).Error
}

// IsNotFound reports whether the error is a gorm record miss, for handlers to
// map to 404.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
