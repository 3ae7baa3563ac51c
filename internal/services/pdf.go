package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"HC-ADMS/internal"
	"HC-ADMS/internal/models"
	"HC-ADMS/internal/storage"

	"github.com/starwalkn/gotenberg-go-client/v8"
	"github.com/starwalkn/gotenberg-go-client/v8/document"
)

// PDFService renders a fully signed agreement to a PDF archive via Gotenberg
// and stores it alongside the signature artifacts in GCS.
type PDFService struct {
	client    *gotenberg.Client
	gcsClient *storage.GCSClient
	ledger    *LedgerService
	timeout   time.Duration
}

func NewPDFService(gotenbergURL, timeoutStr string, gcsClient *storage.GCSClient, ledger *LedgerService) (*PDFService, error) {
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second
		fmt.Printf("Warning: failed to parse timeout '%s', using default 30s: %v\n", timeoutStr, err)
	}

	httpClient := &http.Client{
		Timeout: timeout,
	}

	client, err := gotenberg.NewClient(gotenbergURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gotenberg client: %w", err)
	}

	return &PDFService{
		client:    client,
		gcsClient: gcsClient,
		ledger:    ledger,
		timeout:   timeout,
	}, nil
}

// Archive renders the agreement (sections plus the signer table with embedded
// signature images) and uploads the PDF, recording the object path on the
// agreement.
func (s *PDFService) Archive(ctx context.Context, agreement *models.Agreement) error {
	signatures, err := s.ledger.Current(ctx, agreement.ID)
	if err != nil {
		return err
	}

	page, err := s.composeHTML(ctx, agreement, signatures)
	if err != nil {
		return fmt.Errorf("failed to compose agreement page: %w", err)
	}

	pdf, err := s.convertWithRetry(ctx, page, 3)
	if err != nil {
		return err
	}
	defer pdf.Close()

	objectName := storage.GenerateArchiveObjectName(agreement.ID)
	if _, err := s.gcsClient.UploadFile(ctx, pdf, objectName, "application/pdf"); err != nil {
		return fmt.Errorf("failed to upload agreement archive: %w", err)
	}

	agreement.ArchivePDFPath = objectName
	if err := internal.DB.WithContext(ctx).Model(agreement).
		Update("archive_pdf_path", objectName).Error; err != nil {
		s.gcsClient.DeleteFile(ctx, objectName)
		return fmt.Errorf("failed to record archive path: %w", err)
	}
	return nil
}

func (s *PDFService) convertWithRetry(ctx context.Context, page []byte, maxRetries int) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		convertCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		index, err := document.FromReader("index.html", bytes.NewReader(page))
		if err != nil {
			return nil, fmt.Errorf("failed to build index document: %w", err)
		}

		req := gotenberg.NewHTMLRequest(index)

		resp, err := s.client.Send(convertCtx, req)
		if err == nil {
			return resp.Body, nil
		}

		lastErr = err
		fmt.Printf("Agreement render attempt %d/%d failed: %v\n", attempt, maxRetries, err)

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return nil, fmt.Errorf("failed to render agreement after %d attempts: %w", maxRetries, lastErr)
}

func (s *PDFService) composeHTML(ctx context.Context, agreement *models.Agreement, signatures []models.Signature) ([]byte, error) {
	sections, err := agreement.SectionList()
	if err != nil {
		return nil, err
	}
	reqs, err := agreement.RequirementList()
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(reqs))
	for _, r := range reqs {
		labels[r.Role] = r.Label
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	buf.WriteString("<style>body{font-family:serif;margin:48px}h1{font-size:20px}h2{font-size:14px}table{width:100%;border-collapse:collapse}td{border-top:1px solid #999;padding:8px;vertical-align:bottom}img{max-height:60px}</style>")
	buf.WriteString("</head><body>")
	fmt.Fprintf(&buf, "<h1>%s</h1>", html.EscapeString(agreement.Title))
	fmt.Fprintf(&buf, "<p>Resident: %s &middot; Agreement %s (template v%d)</p>",
		html.EscapeString(agreement.ResidentID), html.EscapeString(agreement.ID), agreement.TemplateVersion)

	for _, section := range sections {
		fmt.Fprintf(&buf, "<h2>%s</h2><p>%s</p>",
			html.EscapeString(section.Title), html.EscapeString(section.Body))
	}

	buf.WriteString("<table>")
	for _, sig := range signatures {
		label := labels[sig.SignerRole]
		if label == "" {
			label = sig.SignerRole
		}
		fmt.Fprintf(&buf, "<tr><td>%s</td><td>%s</td><td>%s</td><td>",
			html.EscapeString(label),
			html.EscapeString(sig.SignerName),
			sig.SignedAt.Format("2006-01-02 15:04"))
		if sig.ImagePath != "" {
			if img, err := s.inlineImage(ctx, sig.ImagePath); err == nil {
				fmt.Fprintf(&buf, "<img src=\"data:image/png;base64,%s\">", img)
			} else {
				fmt.Printf("Warning: failed to inline signature image %s: %v\n", sig.ImagePath, err)
			}
		}
		buf.WriteString("</td></tr>")
	}
	buf.WriteString("</table></body></html>")

	return buf.Bytes(), nil
}

func (s *PDFService) inlineImage(ctx context.Context, objectName string) (string, error) {
	reader, err := s.gcsClient.ReadFile(ctx, objectName)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
