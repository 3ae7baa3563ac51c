package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"
)

// AgreementReader is the slice of the agreement store the lifecycle engine
// needs. Backed by AgreementService in production.
type AgreementReader interface {
	GetAgreement(ctx context.Context, agreementID string) (*models.Agreement, error)
	GetByExternalDocumentID(ctx context.Context, externalDocumentID string) (*models.Agreement, error)
	UpdateStatus(ctx context.Context, agreement *models.Agreement, status lifecycle.Status) error
}

// SignatureLedger is the slice of the ledger the engine needs.
type SignatureLedger interface {
	Append(ctx context.Context, agreement *models.Agreement, in SignatureInput) (*models.Signature, error)
	Current(ctx context.Context, agreementID string) ([]models.Signature, error)
}

// Archiver renders and stores the completed agreement artifact.
type Archiver interface {
	Archive(ctx context.Context, agreement *models.Agreement) error
}

// LifecycleService is the single source of truth for an agreement's status:
// derived from the signature ledger on the local path, from translated
// provider callbacks on the external path.
type LifecycleService struct {
	agreements AgreementReader
	ledger     SignatureLedger
	notifier   Notifier
	archiver   Archiver
	now        func() time.Time
}

func NewLifecycleService(agreements AgreementReader, ledger SignatureLedger, notifier Notifier, archiver Archiver) *LifecycleService {
	return &LifecycleService{
		agreements: agreements,
		ledger:     ledger,
		notifier:   notifier,
		archiver:   archiver,
		now:        time.Now,
	}
}

// RecordLocalSignature appends a drawn signature and recomputes the
// agreement status from the complete current signature set. Recomputing from
// the full set rather than incrementing makes the operation idempotent and
// safe under concurrent signers.
func (s *LifecycleService) RecordLocalSignature(ctx context.Context, agreementID string, in SignatureInput) (*models.Agreement, error) {
	agreement, err := s.agreements.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if agreement.Status == string(lifecycle.StatusExpired) ||
		(agreement.PastExpiry(now) && agreement.Status != string(lifecycle.StatusFullySigned)) {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, lifecycle.ErrAlreadyExpired)
	}
	if agreement.SigningPath() == lifecycle.PathExternal {
		// Client bug: local capture after the external path was chosen.
		log.Printf("Warning: local signature for agreement %s rejected, external document %s owns it",
			agreementID, *agreement.ExternalDocumentID)
		return nil, fmt.Errorf("agreement %s: %w", agreementID, lifecycle.ErrExternalPathConflict)
	}

	in.Method = models.SignatureMethodDrawn
	if _, err := s.ledger.Append(ctx, agreement, in); err != nil {
		return nil, err
	}

	// Re-read the full set before deriving; never trust what this request
	// thinks it added.
	current, err := s.ledger.Current(ctx, agreement.ID)
	if err != nil {
		return nil, err
	}

	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode requirement snapshot: %w", err)
	}

	derived := lifecycle.Derive(reqs, SignedRoles(current), agreement.Dispatched(), agreement.ExpiresAt, now)
	if derived != lifecycle.Status(agreement.Status) {
		if err := s.transition(ctx, agreement, derived); err != nil {
			return nil, err
		}
	}
	return agreement, nil
}

// ApplyExternalStatusUpdate maps a provider callback onto the internal state
// machine. Callbacks are not ordered or exactly-once: anything that would
// move the status backward is ignored, and both terminal statuses reject
// every further transition.
func (s *LifecycleService) ApplyExternalStatusUpdate(ctx context.Context, externalDocumentID, documentStatus string, signers []esign.SignerState) (*models.Agreement, error) {
	agreement, err := s.agreements.GetByExternalDocumentID(ctx, externalDocumentID)
	if err != nil {
		return nil, err
	}

	target, err := lifecycle.TranslateProviderStatus(documentStatus, esign.SignerStatuses(signers))
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", externalDocumentID, err)
	}

	// Lazy expiry wins over anything the provider reports (the provider
	// cannot resurrect an expired agreement).
	currentStatus := lifecycle.Status(agreement.Status)
	if currentStatus != lifecycle.StatusExpired && currentStatus != lifecycle.StatusFullySigned &&
		agreement.PastExpiry(s.now()) {
		if err := s.transition(ctx, agreement, lifecycle.StatusExpired); err != nil {
			return nil, err
		}
		return agreement, fmt.Errorf("document %s: %w", externalDocumentID, lifecycle.ErrStaleTransition)
	}

	// Mirror provider-side completions into the ledger before the advance
	// check: a redelivered or same-rank event can still carry a signer the
	// ledger has not seen.
	if currentStatus != lifecycle.StatusExpired {
		if err := s.recordExternalSigners(ctx, agreement, signers); err != nil {
			return nil, err
		}
	}

	if !lifecycle.Advances(currentStatus, target) {
		return agreement, fmt.Errorf("document %s: %s -> %s: %w",
			externalDocumentID, currentStatus, target, lifecycle.ErrStaleTransition)
	}

	agreement.ExternalStatus = documentStatus
	if err := s.transition(ctx, agreement, target); err != nil {
		return nil, err
	}
	return agreement, nil
}

// recordExternalSigners appends a ledger entry (method external, no image)
// for each provider-side signer reported complete, so the signer summary and
// the archived PDF see both signing paths. Roles already holding a current
// signature are skipped, keeping redeliveries idempotent.
func (s *LifecycleService) recordExternalSigners(ctx context.Context, agreement *models.Agreement, signers []esign.SignerState) error {
	var signed map[string]bool
	for _, signer := range signers {
		if !lifecycle.SignerComplete(signer.Status) {
			continue
		}
		if signed == nil {
			current, err := s.ledger.Current(ctx, agreement.ID)
			if err != nil {
				return err
			}
			signed = SignedRoles(current)
		}
		if signed[signer.Role] {
			continue
		}
		_, err := s.ledger.Append(ctx, agreement, SignatureInput{
			Role:       signer.Role,
			SignerName: signer.Name,
			ContactRef: signer.Email,
			Method:     models.SignatureMethodExternal,
		})
		if err != nil {
			if errors.Is(err, lifecycle.ErrInvalidRole) {
				// Provider-side signers outside the requirement snapshot do
				// not block the callback.
				log.Printf("Warning: dropping external signer role %q for agreement %s", signer.Role, agreement.ID)
				continue
			}
			return err
		}
		signed[signer.Role] = true
	}
	return nil
}

// transition persists the status and fires the edge side effects:
// notifications on pending/full/expired, archival on full.
func (s *LifecycleService) transition(ctx context.Context, agreement *models.Agreement, to lifecycle.Status) error {
	if err := s.agreements.UpdateStatus(ctx, agreement, to); err != nil {
		return err
	}

	switch to {
	case lifecycle.StatusPendingSignatures:
		s.notifier.Notify(ctx, agreement, NotifyEventPendingSignatures)
	case lifecycle.StatusFullySigned:
		s.notifier.Notify(ctx, agreement, NotifyEventFullySigned)
		if s.archiver != nil {
			// Archival failure never blocks the transition.
			if err := s.archiver.Archive(ctx, agreement); err != nil {
				log.Printf("Warning: failed to archive agreement %s: %v", agreement.ID, err)
			}
		}
	case lifecycle.StatusExpired:
		s.notifier.Notify(ctx, agreement, NotifyEventExpired)
	}
	return nil
}
