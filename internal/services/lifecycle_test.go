package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"
)

type fakeAgreements struct {
	byID       map[string]*models.Agreement
	byExternal map[string]*models.Agreement
	updates    []lifecycle.Status
}

func newFakeAgreements(agreements ...*models.Agreement) *fakeAgreements {
	f := &fakeAgreements{
		byID:       make(map[string]*models.Agreement),
		byExternal: make(map[string]*models.Agreement),
	}
	for _, a := range agreements {
		f.byID[a.ID] = a
		if a.ExternalDocumentID != nil {
			f.byExternal[*a.ExternalDocumentID] = a
		}
	}
	return f
}

func (f *fakeAgreements) GetAgreement(ctx context.Context, id string) (*models.Agreement, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("agreement not found")
	}
	return a, nil
}

func (f *fakeAgreements) GetByExternalDocumentID(ctx context.Context, externalID string) (*models.Agreement, error) {
	a, ok := f.byExternal[externalID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", externalID, lifecycle.ErrUnknownExternalDocument)
	}
	return a, nil
}

func (f *fakeAgreements) UpdateStatus(ctx context.Context, a *models.Agreement, status lifecycle.Status) error {
	a.Status = string(status)
	f.updates = append(f.updates, status)
	return nil
}

type fakeLedger struct {
	current map[string]map[string]models.Signature // agreementID -> role -> signature
	appends int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{current: make(map[string]map[string]models.Signature)}
}

func (f *fakeLedger) Append(ctx context.Context, agreement *models.Agreement, in SignatureInput) (*models.Signature, error) {
	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, err
	}
	if !lifecycle.HasRole(reqs, in.Role) {
		return nil, fmt.Errorf("role %q: %w", in.Role, lifecycle.ErrInvalidRole)
	}
	f.appends++
	sig := models.Signature{
		AgreementID: agreement.ID,
		SignerRole:  in.Role,
		SignerName:  in.SignerName,
		Method:      in.Method,
		SignedAt:    time.Now(),
	}
	if f.current[agreement.ID] == nil {
		f.current[agreement.ID] = make(map[string]models.Signature)
	}
	f.current[agreement.ID][in.Role] = sig
	return &sig, nil
}

func (f *fakeLedger) Current(ctx context.Context, agreementID string) ([]models.Signature, error) {
	var out []models.Signature
	for _, sig := range f.current[agreementID] {
		out = append(out, sig)
	}
	return out, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, agreement *models.Agreement, event string) {
	f.events = append(f.events, event)
}

type fakeArchiver struct {
	archived []string
}

func (f *fakeArchiver) Archive(ctx context.Context, agreement *models.Agreement) error {
	f.archived = append(f.archived, agreement.ID)
	return nil
}

func testAgreement(t *testing.T, id string, status lifecycle.Status) *models.Agreement {
	t.Helper()
	reqs, err := json.Marshal([]lifecycle.Requirement{
		{Role: "resident", Label: "Resident", Required: true},
		{Role: "responsible_party", Label: "Responsible Party", Required: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &models.Agreement{
		ID:           id,
		ResidentID:   "res_1",
		Status:       string(status),
		Requirements: reqs,
	}
}

func newEngine(agreements *fakeAgreements, ledger *fakeLedger) (*LifecycleService, *fakeNotifier, *fakeArchiver) {
	notifier := &fakeNotifier{}
	archiver := &fakeArchiver{}
	svc := NewLifecycleService(agreements, ledger, notifier, archiver)
	return svc, notifier, archiver
}

func TestLocalSigningProgression(t *testing.T) {
	agreement := testAgreement(t, "agr_1", lifecycle.StatusPendingSignatures)
	agreements := newFakeAgreements(agreement)
	ledger := newFakeLedger()
	svc, notifier, archiver := newEngine(agreements, ledger)
	ctx := context.Background()

	got, err := svc.RecordLocalSignature(ctx, "agr_1", SignatureInput{Role: "resident", SignerName: "Ada Moore"})
	if err != nil {
		t.Fatalf("first signature: %v", err)
	}
	if got.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("after first signature status = %s", got.Status)
	}

	got, err = svc.RecordLocalSignature(ctx, "agr_1", SignatureInput{Role: "responsible_party", SignerName: "Lee Moore"})
	if err != nil {
		t.Fatalf("second signature: %v", err)
	}
	if got.Status != string(lifecycle.StatusFullySigned) {
		t.Fatalf("after second signature status = %s", got.Status)
	}

	if len(archiver.archived) != 1 || archiver.archived[0] != "agr_1" {
		t.Errorf("archive calls = %v", archiver.archived)
	}
	if len(notifier.events) != 1 || notifier.events[0] != NotifyEventFullySigned {
		t.Errorf("notifications = %v", notifier.events)
	}
}

func TestLocalSigningIdempotent(t *testing.T) {
	agreement := testAgreement(t, "agr_1", lifecycle.StatusPendingSignatures)
	agreements := newFakeAgreements(agreement)
	ledger := newFakeLedger()
	svc, _, _ := newEngine(agreements, ledger)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordLocalSignature(ctx, "agr_1", SignatureInput{Role: "resident", SignerName: "Ada Moore"}); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}

	current, _ := ledger.Current(ctx, "agr_1")
	if len(current) != 1 {
		t.Fatalf("current signatures = %d, want 1", len(current))
	}
	if agreement.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("status = %s, duplicate must not double-count", agreement.Status)
	}
}

func TestLocalSigningInvalidRole(t *testing.T) {
	agreement := testAgreement(t, "agr_1", lifecycle.StatusPendingSignatures)
	svc, _, _ := newEngine(newFakeAgreements(agreement), newFakeLedger())

	_, err := svc.RecordLocalSignature(context.Background(), "agr_1", SignatureInput{Role: "physician", SignerName: "Dr. Who"})
	if !errors.Is(err, lifecycle.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if agreement.Status != string(lifecycle.StatusPendingSignatures) {
		t.Fatalf("status changed on rejected signature: %s", agreement.Status)
	}
}

func TestLocalSigningExternalPathConflict(t *testing.T) {
	agreement := testAgreement(t, "agr_1", lifecycle.StatusPendingSignatures)
	extID := "doc_77"
	agreement.ExternalDocumentID = &extID
	svc, _, _ := newEngine(newFakeAgreements(agreement), newFakeLedger())

	_, err := svc.RecordLocalSignature(context.Background(), "agr_1", SignatureInput{Role: "resident", SignerName: "Ada Moore"})
	if !errors.Is(err, lifecycle.ErrExternalPathConflict) {
		t.Fatalf("expected ErrExternalPathConflict, got %v", err)
	}
}

func TestLocalSigningExpired(t *testing.T) {
	agreement := testAgreement(t, "agr_1", lifecycle.StatusPartiallySigned)
	past := time.Now().Add(-time.Hour)
	agreement.ExpiresAt = &past
	svc, _, _ := newEngine(newFakeAgreements(agreement), newFakeLedger())

	_, err := svc.RecordLocalSignature(context.Background(), "agr_1", SignatureInput{Role: "resident", SignerName: "Ada Moore"})
	if !errors.Is(err, lifecycle.ErrAlreadyExpired) {
		t.Fatalf("expected ErrAlreadyExpired, got %v", err)
	}
}

func externalAgreement(t *testing.T, status lifecycle.Status) (*models.Agreement, *fakeAgreements) {
	t.Helper()
	agreement := testAgreement(t, "agr_1", status)
	extID := "doc_77"
	agreement.ExternalDocumentID = &extID
	return agreement, newFakeAgreements(agreement)
}

func TestExternalStatusProgression(t *testing.T) {
	agreement, agreements := externalAgreement(t, lifecycle.StatusDraft)
	ledger := newFakeLedger()
	svc, notifier, archiver := newEngine(agreements, ledger)
	ctx := context.Background()

	// Provider reports sent.
	got, err := svc.ApplyExternalStatusUpdate(ctx, "doc_77", "sent", nil)
	if err != nil {
		t.Fatalf("sent: %v", err)
	}
	if got.Status != string(lifecycle.StatusPendingSignatures) {
		t.Fatalf("after sent status = %s", got.Status)
	}

	// One of two signers completes.
	signers := []esign.SignerState{
		{Role: "resident", Name: "Ada Moore", Status: "completed"},
		{Role: "responsible_party", Status: "sent"},
	}
	got, err = svc.ApplyExternalStatusUpdate(ctx, "doc_77", "sent", signers)
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	if got.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("after one signer status = %s", got.Status)
	}

	// Duplicate redelivery of the same event: no downgrade, no double-count.
	_, err = svc.ApplyExternalStatusUpdate(ctx, "doc_77", "sent", signers)
	if !errors.Is(err, lifecycle.ErrStaleTransition) {
		t.Fatalf("duplicate redelivery: expected ErrStaleTransition, got %v", err)
	}
	if agreement.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("duplicate redelivery changed status to %s", agreement.Status)
	}
	if ledger.appends != 1 {
		t.Fatalf("ledger appends = %d after redelivery, want 1", ledger.appends)
	}

	// Completion.
	got, err = svc.ApplyExternalStatusUpdate(ctx, "doc_77", "completed", []esign.SignerState{
		{Role: "resident", Name: "Ada Moore", Status: "completed"},
		{Role: "responsible_party", Name: "Lee Moore", Status: "completed"},
	})
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if got.Status != string(lifecycle.StatusFullySigned) {
		t.Fatalf("after completion status = %s", got.Status)
	}
	if len(archiver.archived) != 1 {
		t.Errorf("archive calls = %d", len(archiver.archived))
	}

	// Both completions made it into the ledger for the archived PDF and the
	// signer summary to read.
	current, _ := ledger.Current(ctx, "agr_1")
	if len(current) != 2 {
		t.Fatalf("current ledger entries = %d, want 2", len(current))
	}
	for _, sig := range current {
		if sig.Method != models.SignatureMethodExternal {
			t.Errorf("role %s recorded with method %s", sig.SignerRole, sig.Method)
		}
	}

	wantEvents := []string{NotifyEventPendingSignatures, NotifyEventFullySigned}
	if len(notifier.events) != len(wantEvents) {
		t.Fatalf("notifications = %v", notifier.events)
	}
	for i, want := range wantEvents {
		if notifier.events[i] != want {
			t.Errorf("notification %d = %s, want %s", i, notifier.events[i], want)
		}
	}
}

func TestExternalFullySignedIsTerminal(t *testing.T) {
	agreement, agreements := externalAgreement(t, lifecycle.StatusFullySigned)
	svc, _, _ := newEngine(agreements, newFakeLedger())
	ctx := context.Background()

	// Provider retries must never resurrect a closed agreement. A provider
	// "expired" has no mapping at all, and even a legal status is stale.
	for _, docStatus := range []string{"sent", "viewed", "draft", "completed"} {
		_, err := svc.ApplyExternalStatusUpdate(ctx, "doc_77", docStatus, nil)
		if !errors.Is(err, lifecycle.ErrStaleTransition) {
			t.Fatalf("%s out of fully_signed: expected ErrStaleTransition, got %v", docStatus, err)
		}
		if agreement.Status != string(lifecycle.StatusFullySigned) {
			t.Fatalf("status escaped fully_signed: %s", agreement.Status)
		}
	}
}

func TestExternalExpiredIsTerminal(t *testing.T) {
	agreement, agreements := externalAgreement(t, lifecycle.StatusExpired)
	svc, _, _ := newEngine(agreements, newFakeLedger())

	_, err := svc.ApplyExternalStatusUpdate(context.Background(), "doc_77", "completed", nil)
	if !errors.Is(err, lifecycle.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if agreement.Status != string(lifecycle.StatusExpired) {
		t.Fatalf("status escaped expired: %s", agreement.Status)
	}
}

func TestExternalUnknownDocument(t *testing.T) {
	_, agreements := externalAgreement(t, lifecycle.StatusDraft)
	svc, _, _ := newEngine(agreements, newFakeLedger())

	_, err := svc.ApplyExternalStatusUpdate(context.Background(), "doc_unknown", "sent", nil)
	if !errors.Is(err, lifecycle.ErrUnknownExternalDocument) {
		t.Fatalf("expected ErrUnknownExternalDocument, got %v", err)
	}
}

func TestExternalLazyExpiry(t *testing.T) {
	agreement, agreements := externalAgreement(t, lifecycle.StatusPartiallySigned)
	past := time.Now().Add(-time.Hour)
	agreement.ExpiresAt = &past
	svc, notifier, _ := newEngine(agreements, newFakeLedger())

	_, err := svc.ApplyExternalStatusUpdate(context.Background(), "doc_77", "completed", nil)
	if !errors.Is(err, lifecycle.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if agreement.Status != string(lifecycle.StatusExpired) {
		t.Fatalf("status = %s, want expired", agreement.Status)
	}
	if len(notifier.events) != 1 || notifier.events[0] != NotifyEventExpired {
		t.Errorf("notifications = %v", notifier.events)
	}
}

func TestExternalSignerCompletionRecordedInLedger(t *testing.T) {
	_, agreements := externalAgreement(t, lifecycle.StatusDraft)
	ledger := newFakeLedger()
	svc, _, _ := newEngine(agreements, ledger)

	got, err := svc.ApplyExternalStatusUpdate(context.Background(), "doc_77", "sent", []esign.SignerState{
		{Role: "resident", Name: "Ada Moore", Email: "res@example.com", Status: "completed"},
		{Role: "responsible_party", Status: "sent"},
	})
	if err != nil {
		t.Fatalf("ApplyExternalStatusUpdate: %v", err)
	}
	if got.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("status = %s", got.Status)
	}

	current, _ := ledger.Current(context.Background(), "agr_1")
	if len(current) != 1 {
		t.Fatalf("current ledger entries = %d, want 1", len(current))
	}
	if current[0].SignerRole != "resident" || current[0].SignerName != "Ada Moore" {
		t.Errorf("ledger entry = %+v", current[0])
	}
	if current[0].Method != models.SignatureMethodExternal {
		t.Errorf("method = %s, want %s", current[0].Method, models.SignatureMethodExternal)
	}
}

func TestExternalSignerOutsideRequirementsIsDropped(t *testing.T) {
	agreement, agreements := externalAgreement(t, lifecycle.StatusDraft)
	ledger := newFakeLedger()
	svc, _, _ := newEngine(agreements, ledger)

	// A provider-side signer the template snapshot never declared must not
	// fail the callback or reach the ledger.
	_, err := svc.ApplyExternalStatusUpdate(context.Background(), "doc_77", "sent", []esign.SignerState{
		{Role: "notary", Status: "completed"},
		{Role: "resident", Status: "sent"},
	})
	if err != nil {
		t.Fatalf("ApplyExternalStatusUpdate: %v", err)
	}
	if agreement.Status != string(lifecycle.StatusPartiallySigned) {
		t.Fatalf("status = %s", agreement.Status)
	}
	if ledger.appends != 0 {
		t.Fatalf("ledger appends = %d, want 0", ledger.appends)
	}
}
