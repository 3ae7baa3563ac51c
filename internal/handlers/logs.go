package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"HC-ADMS/internal/models"

	"github.com/gin-gonic/gin"
)

// activityLogStore is implemented by services.ActivityLogService.
type activityLogStore interface {
	GetAllLogs(limit int, offset int) ([]models.ActivityLog, int64, error)
	GetLogsByMethod(method string, limit int, offset int) ([]models.ActivityLog, int64, error)
	GetLogsByPath(path string, limit int, offset int) ([]models.ActivityLog, int64, error)
	GetLogsByAgreement(agreementID string, limit int, offset int) ([]models.ActivityLog, int64, error)
	GetSignatureSubmissions(limit int, offset int) ([]models.ActivityLog, int64, error)
}

type LogsHandler struct {
	activityLogService activityLogStore
}

func NewLogsHandler(activityLogService activityLogStore) *LogsHandler {
	return &LogsHandler{
		activityLogService: activityLogService,
	}
}

type LogsResponse struct {
	Logs       interface{} `json:"logs"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

func parsePaging(c *gin.Context) (limit, page, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 1000 { // Prevent too large requests
		limit = 1000
	}

	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}

	return limit, page, (page - 1) * limit
}

// GetAllLogs returns all activity logs with pagination
func (h *LogsHandler) GetAllLogs(c *gin.Context) {
	limit, page, offset := parsePaging(c)
	method := c.Query("method")
	path := c.Query("path")
	agreementID := c.Query("agreement_id")

	var logs []models.ActivityLog
	var total int64
	var err error

	switch {
	case agreementID != "":
		logs, total, err = h.activityLogService.GetLogsByAgreement(agreementID, limit, offset)
	case method != "":
		logs, total, err = h.activityLogService.GetLogsByMethod(method, limit, offset)
	case path != "":
		logs, total, err = h.activityLogService.GetLogsByPath(path, limit, offset)
	default:
		logs, total, err = h.activityLogService.GetAllLogs(limit, offset)
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, LogsResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	})
}

// GetLogStats returns statistics about the logs
func (h *LogsHandler) GetLogStats(c *gin.Context) {
	logs, total, err := h.activityLogService.GetAllLogs(0, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch log stats"})
		return
	}

	methodCounts := make(map[string]int)
	pathCounts := make(map[string]int)
	statusCounts := make(map[int]int)

	for _, log := range logs {
		methodCounts[log.Method]++
		pathCounts[log.Path]++
		statusCounts[log.StatusCode]++
	}

	c.JSON(http.StatusOK, gin.H{
		"total_requests": total,
		"methods":        methodCounts,
		"paths":          pathCounts,
		"status_codes":   statusCounts,
	})
}

// GetSignatureLogs returns the audit trail of signature submissions: who
// submitted what for which agreement.
func (h *LogsHandler) GetSignatureLogs(c *gin.Context) {
	limit, page, offset := parsePaging(c)

	logs, total, err := h.activityLogService.GetSignatureSubmissions(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signature logs"})
		return
	}

	submissions := make([]gin.H, 0)
	for _, log := range logs {
		entry := gin.H{
			"timestamp":     log.CreatedAt,
			"agreement_id":  log.AgreementID,
			"ip_address":    log.IPAddress,
			"user_agent":    log.UserAgent,
			"status_code":   log.StatusCode,
			"response_time": log.ResponseTime,
		}

		// Strokes are bulky and uninteresting for the audit view; surface
		// only the signer identity fields.
		var body struct {
			SignerRole string `json:"signer_role"`
			SignerName string `json:"signer_name"`
		}
		if err := json.Unmarshal([]byte(log.RequestBody), &body); err == nil {
			entry["signer_role"] = body.SignerRole
			entry["signer_name"] = body.SignerName
		}
		submissions = append(submissions, entry)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages,
	})
}
