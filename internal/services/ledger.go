package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"HC-ADMS/internal"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"
	"HC-ADMS/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService is the durable record of who signed what, when, and how. It
// never decides agreement status; the lifecycle engine reads the current set
// back out and derives.
type LedgerService struct {
	gcsClient *storage.GCSClient
}

func NewLedgerService(gcsClient *storage.GCSClient) *LedgerService {
	return &LedgerService{
		gcsClient: gcsClient,
	}
}

// SignatureInput carries one captured signature into the ledger.
type SignatureInput struct {
	Role       string
	SignerName string
	ContactRef string
	Image      []byte
	Method     string
}

// Append validates the role against the agreement's template snapshot (not
// the live template), stores the image artifact, supersedes any earlier
// signature for the same role, and persists. Re-submitting a role updates the
// existing completion credit rather than duplicating it.
func (s *LedgerService) Append(ctx context.Context, agreement *models.Agreement, in SignatureInput) (*models.Signature, error) {
	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode requirement snapshot: %w", err)
	}
	if !lifecycle.HasRole(reqs, in.Role) {
		return nil, fmt.Errorf("role %q: %w", in.Role, lifecycle.ErrInvalidRole)
	}

	imagePath := ""
	if len(in.Image) > 0 {
		objectName := storage.GenerateSignatureObjectName(agreement.ID, in.Role)
		if _, err := s.gcsClient.UploadFile(ctx, bytes.NewReader(in.Image), objectName, "image/png"); err != nil {
			return nil, fmt.Errorf("failed to upload signature artifact: %w", err)
		}
		imagePath = objectName
	}

	signature := &models.Signature{
		ID:               uuid.New().String(),
		AgreementID:      agreement.ID,
		SignerRole:       in.Role,
		SignerName:       in.SignerName,
		SignerContactRef: in.ContactRef,
		ImagePath:        imagePath,
		Method:           in.Method,
		SignedAt:         time.Now(),
	}

	err = internal.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Signature{}).
			Where("agreement_id = ? AND signer_role = ? AND superseded = ?", agreement.ID, in.Role, false).
			Update("superseded", true).Error; err != nil {
			return fmt.Errorf("failed to supersede prior signature: %w", err)
		}
		if err := tx.Create(signature).Error; err != nil {
			return fmt.Errorf("failed to save signature: %w", err)
		}
		return nil
	})
	if err != nil {
		if imagePath != "" {
			s.gcsClient.DeleteFile(ctx, imagePath)
		}
		return nil, err
	}

	return signature, nil
}

// Current returns the most recent non-superseded signature per role. This is
// the set completion logic runs on.
func (s *LedgerService) Current(ctx context.Context, agreementID string) ([]models.Signature, error) {
	var signatures []models.Signature
	if err := internal.DB.WithContext(ctx).
		Where("agreement_id = ? AND superseded = ?", agreementID, false).
		Order("signed_at ASC").
		Find(&signatures).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch signatures: %w", err)
	}
	return signatures, nil
}

// ListAll returns the full history including superseded entries.
func (s *LedgerService) ListAll(ctx context.Context, agreementID string) ([]models.Signature, error) {
	var signatures []models.Signature
	if err := internal.DB.WithContext(ctx).
		Where("agreement_id = ?", agreementID).
		Order("signed_at ASC").
		Find(&signatures).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch signature history: %w", err)
	}
	return signatures, nil
}

// SignedRoles flattens the current set to the role set the derivation runs
// on.
func SignedRoles(signatures []models.Signature) map[string]bool {
	roles := make(map[string]bool, len(signatures))
	for _, sig := range signatures {
		roles[sig.SignerRole] = true
	}
	return roles
}
