// Package esign is the adapter to the external e-signature provider. It owns
// the outbound document calls and the inbound webhook payload shape; status
// vocabulary translation lives in internal/lifecycle so the state machine
// stays provider-agnostic.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Signer identifies one provider-side signer. Role comes from the same
// requirement set as local signing.
type Signer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type CreateDocumentRequest struct {
	Title      string   `json:"title"`
	TemplateID string   `json:"templateId,omitempty"`
	Signers    []Signer `json:"signers"`
}

// CreateDocumentResult carries the provider's document id and its initial
// status. Creation and "ready to sign" are distinct provider states; callers
// must not advance the agreement until the provider reports sent.
type CreateDocumentResult struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
}

// StatusEvent is the inbound webhook payload.
type StatusEvent struct {
	ExternalDocumentID string        `json:"externalDocumentId"`
	DocumentStatus     string        `json:"documentStatus"`
	Signers            []SignerState `json:"signers"`
}

type SignerState struct {
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status"`
}

// SignerStatuses flattens per-signer states to a role -> status map.
func SignerStatuses(signers []SignerState) map[string]string {
	if len(signers) == 0 {
		return nil
	}
	m := make(map[string]string, len(signers))
	for _, s := range signers {
		m[s.Role] = s.Status
	}
	return m
}

func (e *StatusEvent) SignerStatuses() map[string]string {
	return SignerStatuses(e.Signers)
}

func NewClient(baseURL, apiKey, timeoutStr string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("esign base URL is required")
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 15 * time.Second
		fmt.Printf("Warning: failed to parse esign timeout '%s', using default 15s: %v\n", timeoutStr, err)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// CreateDocument creates a provider-side document from a provider template
// and assigns the signers.
func (c *Client) CreateDocument(ctx context.Context, title, templateExternalID string, signers []Signer) (*CreateDocumentResult, error) {
	body := CreateDocumentRequest{
		Title:      title,
		TemplateID: templateExternalID,
		Signers:    signers,
	}

	var result CreateDocumentResult
	if err := c.post(ctx, "/v1/documents", body, &result); err != nil {
		return nil, fmt.Errorf("failed to create provider document: %w", err)
	}
	if result.DocumentID == "" {
		return nil, fmt.Errorf("provider returned no document id")
	}
	return &result, nil
}

// SendForSignature triggers provider-side delivery to the signers.
// Idempotent: the provider answers 409 for an already-sent document, which is
// treated as success.
func (c *Client) SendForSignature(ctx context.Context, externalDocumentID string) error {
	path := fmt.Sprintf("/v1/documents/%s/send", externalDocumentID)
	err := c.post(ctx, path, struct{}{}, nil)
	if err != nil {
		var statusErr *providerError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("failed to send document for signature: %w", err)
	}
	return nil
}

type providerError struct {
	StatusCode int
	Body       string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &providerError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
