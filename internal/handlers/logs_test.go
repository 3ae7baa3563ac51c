package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"HC-ADMS/internal/models"

	"github.com/gin-gonic/gin"
)

type fakeLogStore struct {
	submissions []models.ActivityLog
	total       int64
	gotLimit    int
	gotOffset   int
	pathCalls   int
}

func (f *fakeLogStore) GetAllLogs(limit, offset int) ([]models.ActivityLog, int64, error) {
	return nil, 0, nil
}

func (f *fakeLogStore) GetLogsByMethod(method string, limit, offset int) ([]models.ActivityLog, int64, error) {
	return nil, 0, nil
}

func (f *fakeLogStore) GetLogsByPath(path string, limit, offset int) ([]models.ActivityLog, int64, error) {
	f.pathCalls++
	return nil, 0, nil
}

func (f *fakeLogStore) GetLogsByAgreement(agreementID string, limit, offset int) ([]models.ActivityLog, int64, error) {
	return nil, 0, nil
}

func (f *fakeLogStore) GetSignatureSubmissions(limit, offset int) ([]models.ActivityLog, int64, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.submissions, f.total, nil
}

func TestSignatureLogsTotalsMatchSubmissions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeLogStore{
		submissions: []models.ActivityLog{
			{
				ID:          "log_1",
				Method:      "POST",
				Path:        "/api/v1/agreements/agr_1/signatures",
				AgreementID: "agr_1",
				RequestBody: `{"signer_role":"resident","signer_name":"Ada Moore"}`,
				StatusCode:  200,
				CreatedAt:   time.Now(),
			},
		},
		total: 1,
	}
	r := gin.New()
	h := NewLogsHandler(store)
	r.GET("/logs/signatures", h.GetSignatureLogs)

	req := httptest.NewRequest(http.MethodGet, "/logs/signatures", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Submissions []map[string]any `json:"submissions"`
		Total       int64            `json:"total"`
		TotalPages  int              `json:"total_pages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// Totals must come from the submissions-only query, never the broader
	// path match that also counts list requests.
	if store.pathCalls != 0 {
		t.Fatalf("handler queried by path %d times", store.pathCalls)
	}
	if resp.Total != int64(len(resp.Submissions)) {
		t.Fatalf("total = %d, submissions = %d", resp.Total, len(resp.Submissions))
	}
	if resp.TotalPages != 1 {
		t.Errorf("total_pages = %d", resp.TotalPages)
	}
	if resp.Submissions[0]["signer_role"] != "resident" || resp.Submissions[0]["signer_name"] != "Ada Moore" {
		t.Errorf("submission = %v", resp.Submissions[0])
	}
	if store.gotLimit != 50 || store.gotOffset != 0 {
		t.Errorf("paging = limit %d offset %d", store.gotLimit, store.gotOffset)
	}
}
