package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/models"

	"github.com/gin-gonic/gin"
)

// ExternalStatusApplier is the engine operation webhook delivery drives.
type ExternalStatusApplier interface {
	ApplyExternalStatusUpdate(ctx context.Context, externalDocumentID, documentStatus string, signers []esign.SignerState) (*models.Agreement, error)
}

// WebhookHandler receives asynchronous status callbacks from the e-signature
// provider. Delivery is neither ordered nor exactly-once, so the handler
// never error-loops the provider: stale events, unknown documents, and
// untranslatable vocabulary are all acknowledged and dropped.
type WebhookHandler struct {
	token  string
	engine ExternalStatusApplier
}

func NewWebhookHandler(token string, engine ExternalStatusApplier) *WebhookHandler {
	return &WebhookHandler{
		token:  token,
		engine: engine,
	}
}

func (h *WebhookHandler) HandleESignCallback(c *gin.Context) {
	if h.token == "" || c.Param("token") != h.token {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var event esign.StatusEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if event.ExternalDocumentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "externalDocumentId is required"})
		return
	}

	agreement, err := h.engine.ApplyExternalStatusUpdate(
		c.Request.Context(), event.ExternalDocumentID, event.DocumentStatus, event.Signers)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownExternalDocument):
			// Stale callback for a deleted/test document. Acknowledge so the
			// provider stops retrying.
			log.Printf("Warning: dropping callback for unknown document %s", event.ExternalDocumentID)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case errors.Is(err, lifecycle.ErrStaleTransition):
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case errors.Is(err, lifecycle.ErrUnknownProviderStatus):
			// Untranslatable vocabulary is dropped, not surfaced: a provider
			// retry would fail the same way forever.
			log.Printf("Warning: dropping callback for document %s: %v", event.ExternalDocumentID, err)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply status update"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied", "agreement_status": agreement.Status})
}
