package services

import (
	"context"
	"fmt"
	"time"

	"HC-ADMS/internal"
	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"

	"github.com/google/uuid"
)

// ESignClient is the outbound side of the external signing bridge.
type ESignClient interface {
	CreateDocument(ctx context.Context, title, templateExternalID string, signers []esign.Signer) (*esign.CreateDocumentResult, error)
	SendForSignature(ctx context.Context, externalDocumentID string) error
}

type AgreementService struct {
	templateService *TemplateService
	ledger          *LedgerService
	esignClient     ESignClient
	notifier        Notifier
	now             func() time.Time
}

func NewAgreementService(templateService *TemplateService, ledger *LedgerService, esignClient ESignClient, notifier Notifier) *AgreementService {
	return &AgreementService{
		templateService: templateService,
		ledger:          ledger,
		esignClient:     esignClient,
		notifier:        notifier,
		now:             time.Now,
	}
}

type AgreementInput struct {
	ResidentID string     `json:"resident_id"`
	TemplateID string     `json:"template_id"`
	Notes      string     `json:"notes"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// CreateAgreement instantiates an agreement from a template, snapshotting the
// template's sections and signature requirements so later template edits
// never change what a signer sees.
func (s *AgreementService) CreateAgreement(ctx context.Context, in AgreementInput) (*models.Agreement, error) {
	if in.ResidentID == "" {
		return nil, fmt.Errorf("resident id is required")
	}

	template, err := s.templateService.GetTemplate(in.TemplateID)
	if err != nil {
		return nil, err
	}

	agreement := &models.Agreement{
		ID:              uuid.New().String(),
		ResidentID:      in.ResidentID,
		TemplateID:      template.ID,
		TemplateVersion: template.Version,
		Title:           template.Title,
		Requirements:    template.SignatureRequirements,
		Sections:        template.Sections,
		Status:          string(lifecycle.StatusDraft),
		Notes:           in.Notes,
		ExpiresAt:       in.ExpiresAt,
	}

	if err := internal.DB.WithContext(ctx).Create(agreement).Error; err != nil {
		return nil, fmt.Errorf("failed to save agreement: %w", err)
	}
	return agreement, nil
}

// GetAgreement reads one agreement, applying the lazy expiry check: an
// agreement past expiresAt reports expired even if its stored status is
// stale.
func (s *AgreementService) GetAgreement(ctx context.Context, agreementID string) (*models.Agreement, error) {
	var agreement models.Agreement
	if err := internal.DB.WithContext(ctx).First(&agreement, "id = ?", agreementID).Error; err != nil {
		return nil, fmt.Errorf("agreement not found: %w", err)
	}

	if _, err := s.applyLazyExpiry(ctx, &agreement); err != nil {
		return nil, err
	}
	return &agreement, nil
}

// GetByExternalDocumentID resolves a provider callback to its agreement.
func (s *AgreementService) GetByExternalDocumentID(ctx context.Context, externalDocumentID string) (*models.Agreement, error) {
	var agreement models.Agreement
	if err := internal.DB.WithContext(ctx).
		First(&agreement, "external_document_id = ?", externalDocumentID).Error; err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("document %s: %w", externalDocumentID, lifecycle.ErrUnknownExternalDocument)
		}
		return nil, fmt.Errorf("failed to look up external document: %w", err)
	}
	return &agreement, nil
}

// ListAgreements returns agreements, optionally filtered by resident.
func (s *AgreementService) ListAgreements(ctx context.Context, residentID string) ([]models.Agreement, error) {
	query := internal.DB.WithContext(ctx).Order("created_at DESC")
	if residentID != "" {
		query = query.Where("resident_id = ?", residentID)
	}

	var agreements []models.Agreement
	if err := query.Find(&agreements).Error; err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}

	for i := range agreements {
		if _, err := s.applyLazyExpiry(ctx, &agreements[i]); err != nil {
			return nil, err
		}
	}
	return agreements, nil
}

// dispatchGuard rejects dispatch for agreements not eligible for the local
// signing path. An agreement carrying an external document id only moves to
// pending through the provider's sent callback; dispatching it locally would
// show signers a pending agreement the provider has not delivered yet.
func dispatchGuard(agreement *models.Agreement) error {
	if agreement.Status == string(lifecycle.StatusExpired) {
		return fmt.Errorf("agreement %s: %w", agreement.ID, lifecycle.ErrAlreadyExpired)
	}
	if agreement.SigningPath() == lifecycle.PathExternal {
		return fmt.Errorf("agreement %s: %w", agreement.ID, lifecycle.ErrExternalPathConflict)
	}
	return nil
}

// Dispatch sends a draft agreement out for local signing.
func (s *AgreementService) Dispatch(ctx context.Context, agreementID string) (*models.Agreement, error) {
	agreement, err := s.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	if err := dispatchGuard(agreement); err != nil {
		return nil, err
	}
	if !lifecycle.Advances(lifecycle.Status(agreement.Status), lifecycle.StatusPendingSignatures) {
		// Already dispatched (or beyond); dispatch is idempotent.
		return agreement, nil
	}

	if err := s.UpdateStatus(ctx, agreement, lifecycle.StatusPendingSignatures); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, agreement, NotifyEventPendingSignatures)
	return agreement, nil
}

// ExternalSignerInput identifies one signer for the external path.
type ExternalSignerInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// BeginExternalSigning puts the agreement on the external path: creates the
// provider document, stamps the external document id (which locks out local
// capture), and triggers delivery. The agreement does not advance to
// pending_signatures here; that happens when the provider reports sent.
func (s *AgreementService) BeginExternalSigning(ctx context.Context, agreementID string, signers []ExternalSignerInput) (*models.Agreement, error) {
	if s.esignClient == nil {
		return nil, fmt.Errorf("external signing is not configured")
	}

	agreement, err := s.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	if agreement.Status == string(lifecycle.StatusExpired) {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, lifecycle.ErrAlreadyExpired)
	}
	if agreement.SigningPath() == lifecycle.PathExternal {
		// Already on the external path; retrigger delivery and return.
		if err := s.esignClient.SendForSignature(ctx, *agreement.ExternalDocumentID); err != nil {
			return nil, err
		}
		return agreement, nil
	}

	// Local signatures already captured pin the agreement to the local path.
	current, err := s.ledger.Current(ctx, agreement.ID)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		return nil, fmt.Errorf("agreement %s has local signatures: %w", agreementID, lifecycle.ErrExternalPathConflict)
	}

	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode requirement snapshot: %w", err)
	}
	providerSigners := make([]esign.Signer, 0, len(signers))
	for _, signer := range signers {
		if !lifecycle.HasRole(reqs, signer.Role) {
			return nil, fmt.Errorf("role %q: %w", signer.Role, lifecycle.ErrInvalidRole)
		}
		providerSigners = append(providerSigners, esign.Signer{
			Email:     signer.Email,
			FirstName: signer.FirstName,
			LastName:  signer.LastName,
			Role:      signer.Role,
		})
	}

	template, err := s.templateService.GetTemplate(agreement.TemplateID)
	if err != nil {
		return nil, err
	}

	result, err := s.esignClient.CreateDocument(ctx, agreement.Title, template.ExternalTemplateID, providerSigners)
	if err != nil {
		return nil, err
	}

	agreement.ExternalDocumentID = &result.DocumentID
	agreement.ExternalStatus = result.Status
	if err := internal.DB.WithContext(ctx).Model(agreement).Updates(map[string]any{
		"external_document_id": result.DocumentID,
		"external_status":      result.Status,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to store external document id: %w", err)
	}

	if err := s.esignClient.SendForSignature(ctx, result.DocumentID); err != nil {
		return nil, err
	}
	return agreement, nil
}

// UpdateStatus persists a new status along with the raw provider vocabulary
// kept for audit. Callers are responsible for having checked the transition
// is legal.
func (s *AgreementService) UpdateStatus(ctx context.Context, agreement *models.Agreement, status lifecycle.Status) error {
	agreement.Status = string(status)
	if err := internal.DB.WithContext(ctx).Model(agreement).Updates(map[string]any{
		"status":          string(status),
		"external_status": agreement.ExternalStatus,
	}).Error; err != nil {
		return fmt.Errorf("failed to update agreement status: %w", err)
	}
	return nil
}

// applyLazyExpiry persists expired for an overdue non-terminal agreement.
// Returns whether a transition happened.
func (s *AgreementService) applyLazyExpiry(ctx context.Context, agreement *models.Agreement) (bool, error) {
	status := lifecycle.Status(agreement.Status)
	if lifecycle.Terminal(status) || !agreement.PastExpiry(s.now()) {
		return false, nil
	}

	if err := s.UpdateStatus(ctx, agreement, lifecycle.StatusExpired); err != nil {
		return false, err
	}
	s.notifier.Notify(ctx, agreement, NotifyEventExpired)
	return true, nil
}

// ExpireOverdue proactively transitions all overdue agreements. Run by the
// background sweeper so listing and reporting views are accurate without a
// read.
func (s *AgreementService) ExpireOverdue(ctx context.Context) (int, error) {
	var overdue []models.Agreement
	if err := internal.DB.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ? AND status IN ?", s.now(), []string{
			string(lifecycle.StatusDraft),
			string(lifecycle.StatusPendingSignatures),
			string(lifecycle.StatusPartiallySigned),
		}).
		Find(&overdue).Error; err != nil {
		return 0, fmt.Errorf("failed to scan for overdue agreements: %w", err)
	}

	expired := 0
	for i := range overdue {
		transitioned, err := s.applyLazyExpiry(ctx, &overdue[i])
		if err != nil {
			return expired, err
		}
		if transitioned {
			expired++
		}
	}
	return expired, nil
}

// SignerState summarizes one requirement's completion for the UI.
type SignerState struct {
	Role       string     `json:"role"`
	Label      string     `json:"label"`
	Required   bool       `json:"required"`
	Signed     bool       `json:"signed"`
	SignerName string     `json:"signer_name,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	Method     string     `json:"method,omitempty"`
}

// SignerSummary reports who has signed and who is outstanding, per the
// template snapshot.
func (s *AgreementService) SignerSummary(ctx context.Context, agreementID string) (*models.Agreement, []SignerState, error) {
	agreement, err := s.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, nil, err
	}

	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode requirement snapshot: %w", err)
	}

	current, err := s.ledger.Current(ctx, agreement.ID)
	if err != nil {
		return nil, nil, err
	}
	byRole := make(map[string]models.Signature, len(current))
	for _, sig := range current {
		byRole[sig.SignerRole] = sig
	}

	states := make([]SignerState, 0, len(reqs))
	for _, r := range reqs {
		state := SignerState{
			Role:     r.Role,
			Label:    r.Label,
			Required: r.Required,
		}
		if sig, ok := byRole[r.Role]; ok {
			state.Signed = true
			state.SignerName = sig.SignerName
			signedAt := sig.SignedAt
			state.SignedAt = &signedAt
			state.Method = sig.Method
		}
		states = append(states, state)
	}
	return agreement, states, nil
}

// StatusReport is the portal-wide agreements view.
type StatusReport struct {
	Counts      map[string]int64     `json:"counts"`
	Outstanding []OutstandingSummary `json:"outstanding"`
}

type OutstandingSummary struct {
	AgreementID string   `json:"agreement_id"`
	ResidentID  string   `json:"resident_id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Missing     []string `json:"missing_roles"`
}

// Report aggregates counts by status plus outstanding roles for every
// agreement still collecting signatures.
func (s *AgreementService) Report(ctx context.Context) (*StatusReport, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := internal.DB.WithContext(ctx).Model(&models.Agreement{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count agreements: %w", err)
	}

	report := &StatusReport{Counts: make(map[string]int64, len(counts))}
	for _, c := range counts {
		report.Counts[c.Status] = c.Count
	}

	var open []models.Agreement
	if err := internal.DB.WithContext(ctx).
		Where("status IN ?", []string{
			string(lifecycle.StatusPendingSignatures),
			string(lifecycle.StatusPartiallySigned),
		}).
		Order("created_at ASC").
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to list open agreements: %w", err)
	}

	for i := range open {
		agreement := &open[i]
		previous := agreement.Status
		if transitioned, err := s.applyLazyExpiry(ctx, agreement); err != nil {
			return nil, err
		} else if transitioned {
			report.Counts[previous]--
			report.Counts[string(lifecycle.StatusExpired)]++
			continue
		}

		reqs, err := agreement.RequirementList()
		if err != nil {
			return nil, fmt.Errorf("failed to decode requirement snapshot: %w", err)
		}
		current, err := s.ledger.Current(ctx, agreement.ID)
		if err != nil {
			return nil, err
		}
		signed := SignedRoles(current)

		var missing []string
		for _, role := range lifecycle.RequiredRoles(reqs) {
			if !signed[role] {
				missing = append(missing, role)
			}
		}
		report.Outstanding = append(report.Outstanding, OutstandingSummary{
			AgreementID: agreement.ID,
			ResidentID:  agreement.ResidentID,
			Title:       agreement.Title,
			Status:      agreement.Status,
			Missing:     missing,
		})
	}
	return report, nil
}
