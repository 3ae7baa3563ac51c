package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HC-ADMS/internal"
	"HC-ADMS/internal/config"
	"HC-ADMS/internal/esign"
	"HC-ADMS/internal/handlers"
	"HC-ADMS/internal/services"
	"HC-ADMS/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := internal.InitDB(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer internal.CloseDB()

	ctx := context.Background()
	gcsClient, err := storage.NewGCSClient(ctx, cfg.GCS.BucketName, cfg.GCS.ProjectID, cfg.GCS.CredentialsPath)
	if err != nil {
		log.Fatalf("Failed to create GCS client: %v", err)
	}
	defer gcsClient.Close()

	var esignClient services.ESignClient
	if cfg.ESign.BaseURL != "" {
		esignClient, err = esign.NewClient(cfg.ESign.BaseURL, cfg.ESign.APIKey, cfg.ESign.Timeout)
		if err != nil {
			log.Fatalf("Failed to create esign client: %v", err)
		}
	} else {
		log.Println("ESIGN_BASE_URL not set, external signing disabled")
	}

	templateService := services.NewTemplateService()
	ledgerService := services.NewLedgerService(gcsClient)
	notifyService := services.NewNotifyService(cfg.Notify.URL)
	agreementService := services.NewAgreementService(templateService, ledgerService, esignClient, notifyService)

	pdfService, err := services.NewPDFService(cfg.Gotenberg.URL, cfg.Gotenberg.Timeout, gcsClient, ledgerService)
	if err != nil {
		log.Fatalf("Failed to create PDF service: %v", err)
	}

	lifecycleService := services.NewLifecycleService(agreementService, ledgerService, notifyService, pdfService)
	activityLogService := services.NewActivityLogService()

	sweepService := handlers.NewAgreementSweepService(agreementService, time.Hour)
	sweepService.Start()

	// Graceful shutdown handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Shutting down server...")
		sweepService.Stop()
		internal.CloseDB()
		os.Exit(0)
	}()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(activityLogService.LoggingMiddleware())

	templatesHandler := handlers.NewTemplatesHandler(templateService)
	agreementsHandler := handlers.NewAgreementsHandler(agreementService)
	signaturesHandler := handlers.NewSignaturesHandler(lifecycleService, ledgerService)
	webhookHandler := handlers.NewWebhookHandler(cfg.ESign.WebhookToken, lifecycleService)
	logsHandler := handlers.NewLogsHandler(activityLogService)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Agreement template catalog
		v1.POST("/templates", templatesHandler.CreateTemplate)
		v1.GET("/templates", templatesHandler.ListTemplates)
		v1.GET("/templates/:templateId", templatesHandler.GetTemplate)
		v1.PUT("/templates/:templateId", templatesHandler.UpdateTemplate)
		v1.DELETE("/templates/:templateId", templatesHandler.DeleteTemplate)

		// Agreement lifecycle
		v1.POST("/agreements", agreementsHandler.CreateAgreement)
		v1.GET("/agreements", agreementsHandler.ListAgreements)
		v1.GET("/agreements/:agreementId", agreementsHandler.GetAgreement)
		v1.POST("/agreements/:agreementId/dispatch", agreementsHandler.Dispatch)
		v1.POST("/agreements/:agreementId/esign", agreementsHandler.BeginExternalSigning)
		v1.GET("/agreements/:agreementId/signers", agreementsHandler.GetSigners)

		// Signature ledger
		v1.POST("/agreements/:agreementId/signatures", signaturesHandler.RecordSignature)
		v1.GET("/agreements/:agreementId/signatures", signaturesHandler.ListSignatures)

		// Reporting and audit
		v1.GET("/reports/agreements", agreementsHandler.GetReport)
		v1.GET("/logs", logsHandler.GetAllLogs)
		v1.GET("/logs/stats", logsHandler.GetLogStats)
		v1.GET("/logs/signatures", logsHandler.GetSignatureLogs)
	}

	// Provider callbacks live outside the portal API group
	r.POST("/webhooks/esign/:token", webhookHandler.HandleESignCallback)

	log.Printf("Starting server on :%s", cfg.Server.Port)
	r.Run(":" + cfg.Server.Port)
}
