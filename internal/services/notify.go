package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"HC-ADMS/internal/models"
)

// Notifier informs the portal's notification collaborator about lifecycle
// edges. Fire-and-forget: there is no response contract and failures are only
// logged.
type Notifier interface {
	Notify(ctx context.Context, agreement *models.Agreement, event string)
}

const (
	NotifyEventPendingSignatures = "pending_signatures"
	NotifyEventFullySigned       = "fully_signed"
	NotifyEventExpired           = "expired"
)

type NotifyService struct {
	url        string
	httpClient *http.Client
}

// NewNotifyService builds the collaborator client. An empty URL disables
// notifications entirely.
func NewNotifyService(url string) *NotifyService {
	return &NotifyService{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type notifyPayload struct {
	AgreementID string    `json:"agreement_id"`
	ResidentID  string    `json:"resident_id"`
	Event       string    `json:"event"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (s *NotifyService) Notify(ctx context.Context, agreement *models.Agreement, event string) {
	if s.url == "" {
		return
	}

	payload, err := json.Marshal(notifyPayload{
		AgreementID: agreement.ID,
		ResidentID:  agreement.ResidentID,
		Event:       event,
		OccurredAt:  time.Now(),
	})
	if err != nil {
		fmt.Printf("Failed to marshal notification for agreement %s: %v\n", agreement.ID, err)
		return
	}

	// Don't block the request on the collaborator.
	go func() {
		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			fmt.Printf("Failed to build notification request: %v\n", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			fmt.Printf("Failed to deliver %s notification for agreement %s: %v\n", event, agreement.ID, err)
			return
		}
		resp.Body.Close()
	}()
}
