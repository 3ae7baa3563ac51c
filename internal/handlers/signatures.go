package handlers

import (
	"errors"
	"net/http"

	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/services"
	"HC-ADMS/internal/signing"

	"github.com/gin-gonic/gin"
)

type SignaturesHandler struct {
	engine *services.LifecycleService
	ledger *services.LedgerService
}

func NewSignaturesHandler(engine *services.LifecycleService, ledger *services.LedgerService) *SignaturesHandler {
	return &SignaturesHandler{
		engine: engine,
		ledger: ledger,
	}
}

// CaptureRequest is the browser's committed stroke set plus signer identity.
type CaptureRequest struct {
	SignerRole       string `json:"signer_role"`
	SignerName       string `json:"signer_name"`
	SignerContactRef string `json:"signer_contact_ref"`
	Capture          struct {
		Width   float64           `json:"width"`
		Height  float64           `json:"height"`
		Strokes [][]signing.Point `json:"strokes"`
	} `json:"capture"`
}

// RecordSignature renders the stroke set to the signature artifact and runs
// it through the lifecycle engine.
func (h *SignaturesHandler) RecordSignature(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.SignerRole == "" || req.SignerName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signer role and name are required"})
		return
	}

	image, err := signing.RenderStrokes(req.Capture.Width, req.Capture.Height, req.Capture.Strokes)
	if err != nil {
		if errors.Is(err, signing.ErrEmptyStroke) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature capture is empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render signature"})
		return
	}

	agreement, err := h.engine.RecordLocalSignature(c.Request.Context(), agreementID, services.SignatureInput{
		Role:       req.SignerRole,
		SignerName: req.SignerName,
		ContactRef: req.SignerContactRef,
		Image:      image,
	})
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Agreement not found"})
		case errors.Is(err, lifecycle.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, lifecycle.ErrAlreadyExpired):
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement is expired"})
		case errors.Is(err, lifecycle.ErrExternalPathConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement is on the external signing path"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record signature"})
		}
		return
	}

	c.JSON(http.StatusOK, agreement)
}

// ListSignatures returns the full ledger history for an agreement.
func (h *SignaturesHandler) ListSignatures(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	signatures, err := h.ledger.ListAll(c.Request.Context(), agreementID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signatures"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signatures": signatures})
}
