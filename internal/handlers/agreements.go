package handlers

import (
	"errors"
	"net/http"

	"HC-ADMS/internal/lifecycle"
	"HC-ADMS/internal/services"

	"github.com/gin-gonic/gin"
)

type AgreementsHandler struct {
	agreementService *services.AgreementService
}

func NewAgreementsHandler(agreementService *services.AgreementService) *AgreementsHandler {
	return &AgreementsHandler{
		agreementService: agreementService,
	}
}

func (h *AgreementsHandler) CreateAgreement(c *gin.Context) {
	var req services.AgreementInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	agreement, err := h.agreementService.CreateAgreement(c.Request.Context(), req)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, agreement)
}

func (h *AgreementsHandler) GetAgreement(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	agreement, err := h.agreementService.GetAgreement(c.Request.Context(), agreementID)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agreement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch agreement"})
		return
	}

	c.JSON(http.StatusOK, agreement)
}

func (h *AgreementsHandler) ListAgreements(c *gin.Context) {
	agreements, err := h.agreementService.ListAgreements(c.Request.Context(), c.Query("resident_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list agreements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agreements": agreements})
}

// Dispatch sends a draft agreement out for signing on the local path.
func (h *AgreementsHandler) Dispatch(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	agreement, err := h.agreementService.Dispatch(c.Request.Context(), agreementID)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agreement not found"})
			return
		}
		if errors.Is(err, lifecycle.ErrAlreadyExpired) {
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement is expired"})
			return
		}
		if errors.Is(err, lifecycle.ErrExternalPathConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement is on the external signing path"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch agreement"})
		return
	}

	c.JSON(http.StatusOK, agreement)
}

type BeginExternalRequest struct {
	Signers []services.ExternalSignerInput `json:"signers"`
}

// BeginExternalSigning puts the agreement on the external provider path.
func (h *AgreementsHandler) BeginExternalSigning(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	var req BeginExternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if len(req.Signers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one signer is required"})
		return
	}

	agreement, err := h.agreementService.BeginExternalSigning(c.Request.Context(), agreementID, req.Signers)
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Agreement not found"})
		case errors.Is(err, lifecycle.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, lifecycle.ErrAlreadyExpired):
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement is expired"})
		case errors.Is(err, lifecycle.ErrExternalPathConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "Agreement already has local signatures"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create provider document"})
		}
		return
	}

	c.JSON(http.StatusOK, agreement)
}

type SignerSummaryResponse struct {
	AgreementID string                 `json:"agreement_id"`
	Status      string                 `json:"status"`
	Signers     []services.SignerState `json:"signers"`
}

// GetSigners reports who has signed and who is outstanding.
func (h *AgreementsHandler) GetSigners(c *gin.Context) {
	agreementID := c.Param("agreementId")
	if agreementID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Agreement ID is required"})
		return
	}

	agreement, states, err := h.agreementService.SignerSummary(c.Request.Context(), agreementID)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agreement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signer summary"})
		return
	}

	c.JSON(http.StatusOK, SignerSummaryResponse{
		AgreementID: agreement.ID,
		Status:      agreement.Status,
		Signers:     states,
	})
}

// GetReport returns the portal-wide agreements status report.
func (h *AgreementsHandler) GetReport(c *gin.Context) {
	report, err := h.agreementService.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
		return
	}

	c.JSON(http.StatusOK, report)
}
