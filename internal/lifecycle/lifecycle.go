// Package lifecycle holds the agreement status state machine. Everything in
// this package is pure: status derivation is computed from the complete
// current signature set, never incremented, so re-running it after any write
// is safe under retry and concurrent signers.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingSignatures Status = "pending_signatures"
	StatusPartiallySigned   Status = "partially_signed"
	StatusFullySigned       Status = "fully_signed"
	StatusExpired           Status = "expired"
)

// Signing path per agreement. The two are mutually exclusive: once an
// agreement carries an external document id, local capture is locked out.
type SigningPath string

const (
	PathLocal    SigningPath = "local"
	PathExternal SigningPath = "external"
)

var (
	ErrInvalidRole             = errors.New("signer role is not in the agreement's requirement set")
	ErrAlreadyExpired          = errors.New("agreement is expired")
	ErrExternalPathConflict    = errors.New("agreement is on the external signing path")
	ErrUnknownExternalDocument = errors.New("unknown external document id")
	ErrStaleTransition         = errors.New("transition would move status backward")
	ErrUnknownProviderStatus   = errors.New("unknown provider status vocabulary")
)

// Requirement is one template-declared signer role. Roles are open-ended
// string ids (resident, responsible_party, witness, ...) declared as data,
// not code.
type Requirement struct {
	Role     string `json:"role"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Section is one body section of an agreement template.
type Section struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Required bool   `json:"required"`
}

// statusRank orders the non-terminal progression. Expired sits outside the
// rank ladder and is handled explicitly in Advances.
var statusRank = map[Status]int{
	StatusDraft:             0,
	StatusPendingSignatures: 1,
	StatusPartiallySigned:   2,
	StatusFullySigned:       3,
}

// Derive computes the agreement status from the set of roles holding a
// current signature. Expiry takes precedence over everything except a
// completed signature set.
func Derive(reqs []Requirement, signedRoles map[string]bool, dispatched bool, expiresAt *time.Time, now time.Time) Status {
	base := deriveFromSets(reqs, signedRoles, dispatched)
	if base != StatusFullySigned && expiresAt != nil && now.After(*expiresAt) {
		return StatusExpired
	}
	return base
}

func deriveFromSets(reqs []Requirement, signedRoles map[string]bool, dispatched bool) Status {
	signed := 0
	missing := 0
	for _, r := range reqs {
		if !signedRoles[r.Role] {
			if r.Required {
				missing++
			}
			continue
		}
		signed++
	}
	switch {
	case missing == 0 && signed > 0:
		return StatusFullySigned
	case signed > 0:
		return StatusPartiallySigned
	case dispatched:
		return StatusPendingSignatures
	default:
		return StatusDraft
	}
}

// Advances reports whether moving from one status to another is a legal,
// forward transition. Fully signed and expired are both terminal; expired is
// reachable from any non-terminal status.
func Advances(from, to Status) bool {
	if from == StatusFullySigned || from == StatusExpired {
		return false
	}
	if to == StatusExpired {
		return true
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > statusRank[from]
}

// Terminal reports whether no further transition out of the status exists.
func Terminal(s Status) bool {
	return s == StatusFullySigned || s == StatusExpired
}

// HasRole reports whether role appears in the requirement set.
func HasRole(reqs []Requirement, role string) bool {
	for _, r := range reqs {
		if r.Role == role {
			return true
		}
	}
	return false
}

// RequiredRoles returns the roles that must sign for completion.
func RequiredRoles(reqs []Requirement) []string {
	var roles []string
	for _, r := range reqs {
		if r.Required {
			roles = append(roles, r.Role)
		}
	}
	return roles
}

// Provider document statuses are translated through this fixed table so the
// internal state machine stays provider-agnostic. Raw vocabulary is never
// passed through.
var providerDocumentStatus = map[string]Status{
	"draft":     StatusDraft,
	"created":   StatusDraft,
	"sent":      StatusPendingSignatures,
	"viewed":    StatusPendingSignatures,
	"completed": StatusFullySigned,
}

// Per-signer provider statuses that count as a completed signature.
var providerSignerComplete = map[string]bool{
	"completed": true,
	"signed":    true,
}

// SignerComplete reports whether a per-signer provider status counts as a
// completed signature.
func SignerComplete(status string) bool {
	return providerSignerComplete[status]
}

// TranslateProviderStatus maps the provider's webhook vocabulary to the
// internal status enum. Per-signer completion overrides the coarse document
// status: any-but-not-all signers complete is partially_signed, all complete
// is fully_signed. Unknown vocabulary is an error for the caller to log and
// drop.
func TranslateProviderStatus(documentStatus string, signerStatuses map[string]string) (Status, error) {
	base, ok := providerDocumentStatus[documentStatus]
	if !ok {
		return "", fmt.Errorf("document status %q: %w", documentStatus, ErrUnknownProviderStatus)
	}
	if base == StatusFullySigned {
		return StatusFullySigned, nil
	}
	if len(signerStatuses) > 0 {
		complete := 0
		for _, st := range signerStatuses {
			if providerSignerComplete[st] {
				complete++
			}
		}
		if complete == len(signerStatuses) && complete > 0 {
			return StatusFullySigned, nil
		}
		if complete > 0 {
			return StatusPartiallySigned, nil
		}
	}
	return base, nil
}
