package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/docs"
	"github.com/onegreenvn/green-outreach-services-backend/internal/ai"
	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/messaging"
	"github.com/onegreenvn/green-outreach-services-backend/internal/router"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

// @title Green Outreach API
// @version 1.0
// @description Drip campaigns, batch campaigns and scheduled messages, metered by tenant credits
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.one-green.io/support
// @contact.email support@one-green.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter `Bearer ` followed by a JWT carrying a tenant_id claim

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Swagger base path dynamically
	docs.SwaggerInfo.BasePath = cfg.BasePath

	configureLogging(cfg.LogLevel)

	if err := utils.InitSentry(cfg.SentryDSN, os.Getenv("ENVIRONMENT")); err != nil {
		logrus.Warnf("Failed to initialize Sentry: %v", err)
	}
	defer utils.FlushSentry(2 * time.Second)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	batchRepo := repository.NewBatchCampaignRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	logRepo := repository.NewProcessLogRepository(db)

	// Create SSE Hub (shared by the activity log and its stream handler)
	sseHub := services.NewSSEHub()
	processLogService := services.NewProcessLogService(logRepo, sseHub)
	processLogService.StartLogCleanup(6*time.Hour, cfg.LogRetentionDays)
	defer processLogService.StopLogCleanup()

	// Initialize RabbitMQ service; the scheduler runs without it
	var publisher services.EventPublisher
	var rabbitMQService *services.RabbitMQService
	if cfg.RabbitMQ.Host != "" {
		rabbitMQService, err = services.NewRabbitMQService(cfg.RabbitMQ)
		if err != nil {
			logrus.Warnf("Failed to initialize RabbitMQ: %v", err)
		} else {
			defer rabbitMQService.Close()
			publisher = rabbitMQService
		}
	}

	var provider messaging.Provider
	if cfg.Provider.URL != "" {
		provider = messaging.NewHTTPProvider(cfg.Provider.URL, cfg.Provider.APIKey, cfg.Scheduler.DispatchTimeout)
	} else {
		logrus.Warn("MESSAGING_PROVIDER_URL is not set, messages will only be logged")
		provider = messaging.NewLogProvider()
	}

	var completer ai.Completer
	if cfg.AI.URL != "" {
		completer = ai.NewHTTPCompleter(cfg.AI.URL, cfg.AI.APIKey, cfg.AI.Timeout)
	}

	creditService := services.NewCreditService(creditRepo, processLogService, cfg.Credit.MediaSurcharge)
	campaignService := services.NewCampaignService(campaignRepo, processLogService, cfg.Provider.SenderID)
	enrollmentService := services.NewEnrollmentService(campaignRepo, leadRepo, enrollmentRepo, processLogService, cfg.DisqualifyingStatuses)
	triggerService := services.NewTriggerService(campaignRepo, enrollmentService, cfg.DisqualifyingStatuses)
	dripService := services.NewDripSchedulerService(enrollmentRepo, campaignRepo, leadRepo, enrollmentService, creditService, provider, publisher, cfg)
	batchService := services.NewBatchCampaignService(batchRepo, leadRepo, creditService, provider, publisher, processLogService, cfg)
	scheduledService := services.NewScheduledMessageService(scheduledRepo, leadRepo, creditService, provider, publisher, processLogService, cfg)
	aiService := services.NewAIAssistService(completer, creditService, cfg.AI.Timeout)

	if channel := rabbitMQService.GetChannel(); channel != nil {
		if err := triggerService.StartRabbitMQConsumer(channel, cfg.RabbitMQ.LeadEventsQueue); err != nil {
			logrus.Warnf("Failed to start lead event consumer: %v", err)
		} else {
			logrus.Info("Lead event consumer started")
			defer triggerService.StopRabbitMQConsumer()
		}
	}

	runner := services.NewSchedulerRunner(dripService, batchService, scheduledService, cfg.Scheduler.TickInterval)
	runner.Start()
	defer runner.Stop()

	r := router.SetupRouter(router.Services{
		Campaigns:         campaignService,
		Enrollments:       enrollmentService,
		Triggers:          triggerService,
		BatchCampaigns:    batchService,
		ScheduledMessages: scheduledService,
		Credits:           creditService,
		AI:                aiService,
		Activity:          processLogService,
		Runner:            runner,
		SSEHub:            sseHub,
	}, cfg.JWTSecret, cfg.TriggerKeyHash)

	// Configure HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		logrus.Infof("API Health Check: http://localhost:%s/api/v1/health", cfg.Port)
		logrus.Infof("Swagger UI: http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited properly")
}

func configureLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
