package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"idcard/internal/api/middleware"
	"idcard/internal/render/canvas"
	"idcard/internal/render/preview"
)

// Dependencies carries everything the HTTP handlers need.
type Dependencies struct {
	DB       *gorm.DB
	Enqueuer TaskEnqueuer
	Storage  ObjectStore
	Redis    *redis.Client
	// Validator may be nil when authentication is disabled.
	Validator      middleware.TokenValidator
	InternalSecret string
	Logger         *slog.Logger

	Canvas  func(scale float64) *canvas.Renderer
	Preview *preview.Renderer
	Printer Printer
	// Thumbnailer renders PNG previews. Nil uses Preview.
	Thumbnailer       Thumbnailer
	ThumbnailWidth    int
	MaxThumbnailWidth int
	MaxRetry          int
	// RateLimit is the per-minute budget for render and print requests.
	RateLimit int
}

// RegisterRoutes registers the API routes under /v1.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	authMiddleware := middleware.AuthMiddleware(deps.Validator)
	var counter middleware.RateCounter
	if deps.Redis != nil {
		counter = deps.Redis
	}
	renderLimit := middleware.RateLimitMiddleware(counter, "render", deps.RateLimit, time.Minute)

	templateHandler := NewTemplateHandler(deps.DB, deps.Enqueuer, deps.Storage, deps.Logger)
	libraryHandler := NewLibraryHandler(deps.DB)
	renderHandler := NewRenderHandler(deps.DB, deps.Canvas, deps.Preview, deps.Printer, deps.Thumbnailer, deps.ThumbnailWidth, deps.MaxThumbnailWidth)
	printJobHandler := NewPrintJobHandler(deps.DB, deps.Enqueuer, deps.Storage, deps.MaxRetry)

	v1 := router.Group("/v1")
	{
		if deps.Redis != nil {
			wsHandler := NewWsHandler(deps.Redis, deps.Validator, deps.Logger, nil)
			v1.GET("/ws", wsHandler.HandleConnection)
		}

		v1.POST("/templates/seed", middleware.InternalSecretMiddleware(deps.InternalSecret), templateHandler.Seed)

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.GET("/popular", templateHandler.PopularTemplates)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.PUT("/:id", templateHandler.UpdateTemplate)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
			templateGroup.POST("/:id/use", templateHandler.UseTemplate)
		}

		libraryGroup := v1.Group("")
		libraryGroup.Use(authMiddleware)
		{
			libraryGroup.GET("/students", libraryHandler.ListStudents)
			libraryGroup.GET("/students/:id", libraryHandler.GetStudent)
			libraryGroup.GET("/settings", libraryHandler.GetSettings)
		}

		renderGroup := v1.Group("/render")
		renderGroup.Use(authMiddleware)
		{
			renderGroup.POST("/canvas", renderHandler.Canvas)
			renderGroup.POST("/canvas/edit", renderHandler.CanvasEdit)
			renderGroup.POST("/preview", renderHandler.Preview)
			renderGroup.POST("/document", renderLimit, renderHandler.Document)
		}

		jobGroup := v1.Group("/print-jobs")
		jobGroup.Use(authMiddleware)
		{
			jobGroup.GET("", printJobHandler.ListPrintJobs)
			jobGroup.POST("", renderLimit, printJobHandler.CreatePrintJobs)
			jobGroup.GET("/:id", printJobHandler.GetPrintJob)
			jobGroup.GET("/:id/download-link", printJobHandler.GetDownloadLink)
		}
	}
}
