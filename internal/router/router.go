package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/onegreenvn/green-outreach-services-backend/internal/handlers"
	"github.com/onegreenvn/green-outreach-services-backend/internal/middleware"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
)

// Services are the application services the HTTP layer exposes
type Services struct {
	Campaigns         *services.CampaignService
	Enrollments       *services.EnrollmentService
	Triggers          *services.TriggerService
	BatchCampaigns    *services.BatchCampaignService
	ScheduledMessages *services.ScheduledMessageService
	Credits           *services.CreditService
	AI                *services.AIAssistService
	Activity          *services.ProcessLogService
	Runner            *services.SchedulerRunner
	SSEHub            *services.SSEHub
}

// SetupRouter configures the Gin router
func SetupRouter(svc Services, jwtSecret, triggerKeyHash string) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Use middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	bearerTokenMiddleware := middleware.NewBearerTokenMiddleware(jwtSecret)
	triggerKeyMiddleware := middleware.NewTriggerKeyMiddleware(triggerKeyHash)

	campaignHandler := handlers.NewCampaignHandler(svc.Campaigns, svc.Enrollments)
	enrollmentHandler := handlers.NewEnrollmentHandler(svc.Enrollments)
	batchHandler := handlers.NewBatchCampaignHandler(svc.BatchCampaigns)
	scheduledHandler := handlers.NewScheduledMessageHandler(svc.ScheduledMessages)
	creditHandler := handlers.NewCreditHandler(svc.Credits)
	aiHandler := handlers.NewAIHandler(svc.AI)
	leadEventHandler := handlers.NewLeadEventHandler(svc.Triggers)
	processLogHandler := handlers.NewProcessLogHandler(svc.Activity, svc.SSEHub)
	internalHandler := handlers.NewInternalHandler(svc.Runner, svc.Credits)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	logrus.Info("Swagger UI endpoint registered at /swagger/index.html")

	// API v1 routes
	api := r.Group("/api/v1")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
				"time":   time.Now().Format(time.RFC3339),
			})
		})

		// Protected routes
		protected := api.Group("")
		protected.Use(bearerTokenMiddleware.TenantAuthMiddleware())
		{
			// Drip campaign routes
			campaigns := protected.Group("/campaigns")
			{
				campaigns.POST("", campaignHandler.CreateCampaign)
				campaigns.GET("", campaignHandler.ListCampaigns)
				campaigns.GET("/:id", campaignHandler.GetCampaign)
				campaigns.PUT("/:id/active", campaignHandler.SetCampaignActive)
				campaigns.POST("/:id/enrollments", campaignHandler.Enroll)
				campaigns.GET("/:id/enrollments", campaignHandler.ListEnrollments)
				campaigns.POST("/:id/re-enroll", campaignHandler.ReEnroll)
			}

			// Enrollment routes
			enrollments := protected.Group("/enrollments")
			{
				enrollments.GET("/:id", enrollmentHandler.GetEnrollment)
				enrollments.POST("/:id/pause", enrollmentHandler.PauseEnrollment)
				enrollments.POST("/:id/resume", enrollmentHandler.ResumeEnrollment)
				enrollments.POST("/:id/cancel", enrollmentHandler.CancelEnrollment)
			}

			// Batch campaign routes
			batches := protected.Group("/batch-campaigns")
			{
				batches.POST("", batchHandler.ScheduleBatchCampaign)
				batches.POST("/import", batchHandler.ImportBatchCampaign)
				batches.GET("", batchHandler.ListBatchCampaigns)
				batches.GET("/:id", batchHandler.GetBatchCampaign)
				batches.GET("/:id/report", batchHandler.ExportBatchReport)
				batches.POST("/:id/pause", batchHandler.PauseBatchCampaign)
				batches.POST("/:id/resume", batchHandler.ResumeBatchCampaign)
				batches.POST("/:id/cancel", batchHandler.CancelBatchCampaign)
			}

			// Scheduled message routes
			scheduled := protected.Group("/scheduled-messages")
			{
				scheduled.POST("", scheduledHandler.CreateScheduledMessage)
				scheduled.GET("", scheduledHandler.ListScheduledMessages)
				scheduled.GET("/:id", scheduledHandler.GetScheduledMessage)
				scheduled.PUT("/:id", scheduledHandler.UpdateScheduledMessage)
				scheduled.POST("/:id/cancel", scheduledHandler.CancelScheduledMessage)
			}

			// Credit routes
			credits := protected.Group("/credits")
			{
				credits.GET("/balance", creditHandler.GetBalance)
				credits.GET("/transactions", creditHandler.ListTransactions)
				credits.POST("/estimate", creditHandler.EstimateCost)
			}

			protected.POST("/ai/assist", aiHandler.AssistMessage)
			protected.POST("/lead-events", leadEventHandler.PostLeadEvent)

			// Activity routes
			activity := protected.Group("/activity")
			{
				activity.GET("", processLogHandler.ListActivity)
				activity.GET("/stream", processLogHandler.StreamActivitySSE)
			}
		}
	}

	// Internal routes for the external scheduler
	internal := r.Group("/internal")
	internal.Use(triggerKeyMiddleware.TriggerKeyAuthMiddleware())
	{
		internal.POST("/sweep", internalHandler.SweepDueWork)
		internal.POST("/credits/grant", internalHandler.GrantCredits)
	}

	return r
}
