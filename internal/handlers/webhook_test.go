package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"

	"github.com/gin-gonic/gin"
)

type fakeEngine struct {
	calls       int
	lastDocID   string
	lastStatus  string
	lastSigners []esign.SignerState
	err         error
	agreement   *models.Agreement
}

func (f *fakeEngine) ApplyExternalStatusUpdate(ctx context.Context, externalDocumentID, documentStatus string, signers []esign.SignerState) (*models.Agreement, error) {
	f.calls++
	f.lastDocID = externalDocumentID
	f.lastStatus = documentStatus
	f.lastSigners = signers
	return f.agreement, f.err
}

func newWebhookRouter(token string, engine *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(token, engine)
	r.POST("/webhooks/esign/:token", h.HandleESignCallback)
	return r
}

func postEvent(t *testing.T, r *gin.Engine, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/esign/"+token, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookApplied(t *testing.T) {
	engine := &fakeEngine{agreement: &models.Agreement{ID: "agr_1", Status: "pending_signatures"}}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_1", gin.H{
		"externalDocumentId": "doc_77",
		"documentStatus":     "sent",
		"signers": []gin.H{
			{"role": "resident", "status": "sent"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if engine.calls != 1 || engine.lastDocID != "doc_77" || engine.lastStatus != "sent" {
		t.Fatalf("engine call = %+v", engine)
	}
	if len(engine.lastSigners) != 1 || engine.lastSigners[0].Role != "resident" || engine.lastSigners[0].Status != "sent" {
		t.Fatalf("signer states = %v", engine.lastSigners)
	}
}

func TestWebhookBadToken(t *testing.T) {
	engine := &fakeEngine{}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_wrong", gin.H{"externalDocumentId": "doc_77", "documentStatus": "sent"})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if engine.calls != 0 {
		t.Fatal("engine must not run for a bad token")
	}
}

func TestWebhookEmptyConfiguredToken(t *testing.T) {
	// A blank configured token disables the endpoint rather than matching
	// a blank path segment.
	engine := &fakeEngine{}
	r := newWebhookRouter("", engine)

	w := postEvent(t, r, "anything", gin.H{"externalDocumentId": "doc_77", "documentStatus": "sent"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestWebhookUnknownDocumentIsAcknowledged(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("document doc_77: %w", lifecycle.ErrUnknownExternalDocument)}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_1", gin.H{"externalDocumentId": "doc_77", "documentStatus": "sent"})

	if w.Code != http.StatusOK {
		t.Fatalf("unknown document must be acknowledged, got %d", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ignored" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestWebhookStaleTransitionIsAcknowledged(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("doc_77: %w", lifecycle.ErrStaleTransition)}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_1", gin.H{"externalDocumentId": "doc_77", "documentStatus": "sent"})
	if w.Code != http.StatusOK {
		t.Fatalf("stale transition must be acknowledged, got %d", w.Code)
	}
}

func TestWebhookUnknownVocabularyIsAcknowledged(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("status: %w", lifecycle.ErrUnknownProviderStatus)}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_1", gin.H{"externalDocumentId": "doc_77", "documentStatus": "on_hold"})
	if w.Code != http.StatusOK {
		t.Fatalf("unknown vocabulary must be acknowledged, got %d", w.Code)
	}
}

func TestWebhookPersistenceFailure(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("db down")}
	r := newWebhookRouter("tok_1", engine)

	w := postEvent(t, r, "tok_1", gin.H{"externalDocumentId": "doc_77", "documentStatus": "sent"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("persistence failure must be retryable, got %d", w.Code)
	}
}

func TestWebhookBadPayload(t *testing.T) {
	engine := &fakeEngine{}
	r := newWebhookRouter("tok_1", engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/esign/tok_1", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	w = postEvent(t, r, "tok_1", gin.H{"documentStatus": "sent"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing document id: status = %d", w.Code)
	}
	if engine.calls != 0 {
		t.Fatal("engine must not run for bad payloads")
	}
}
