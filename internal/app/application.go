package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rte-image-backend/internal/authorization"
	"rte-image-backend/internal/background"
	"rte-image-backend/internal/config"
	"rte-image-backend/internal/handlers"
	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/middleware"
	"rte-image-backend/internal/models"
	"rte-image-backend/internal/reference"
	"rte-image-backend/internal/repository"
	"rte-image-backend/internal/service"
	"rte-image-backend/pkg/cache"
	"rte-image-backend/pkg/logger"
	"rte-image-backend/pkg/validator"
)

type Options struct {
	// Registerer receives the application metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

type Application struct {
	cfg     *config.Config
	options Options

	db    *gorm.DB
	cache *cache.Cache

	repositories repositoryContainer
	services     serviceContainer
	handlers     handlerContainer

	scheduler   *background.Scheduler
	rateLimiter *middleware.RateLimitManager
	router      *gin.Engine
	server      *http.Server
}

type repositoryContainer struct {
	File          repository.FileRepository
	ProcessedFile repository.ProcessedFileRepository
	Content       repository.ContentRepository
	Reference     repository.ReferenceRepository
}

type serviceContainer struct {
	Processor *service.ImageProcessor
	Asset     *service.AssetService
	Render    *service.ContentRenderService
	Reference *service.ReferenceService
	Upload    *service.UploadService
}

type handlerContainer struct {
	Render    *handlers.RenderHandler
	Reference *handlers.ReferenceHandler
	Upload    *handlers.UploadHandler
}

func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	app := &Application{
		cfg:     cfg,
		options: opts,
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.runMigrations(); err != nil {
		return nil, err
	}

	if err := app.createIndexes(); err != nil {
		return nil, err
	}

	app.initCache()
	app.initRepositories()

	if err := app.initServices(); err != nil {
		return nil, err
	}

	app.initHandlers()

	if err := app.initScheduler(); err != nil {
		return nil, err
	}

	app.initRouter()

	app.server = &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        app.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return app, nil
}

func (a *Application) Run() error {
	logger.Info("Server starting", map[string]interface{}{
		"port":        a.cfg.Port,
		"environment": a.cfg.Environment,
	})

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to stop background scheduler", nil)
		}
	}

	if a.rateLimiter != nil {
		_ = a.rateLimiter.Shutdown()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Error(err, "Failed to close cache connection", nil)
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	return nil
}

func (a *Application) Router() *gin.Engine {
	return a.router
}

func (a *Application) initDatabase() error {
	logger.Info("Connecting to database", nil)

	db, err := gorm.Open(postgres.Open(a.cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	a.db = db
	return nil
}

func (a *Application) runMigrations() error {
	if a.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Running database migrations", nil)

	if err := a.db.AutoMigrate(
		&models.File{},
		&models.ProcessedFile{},
		&models.ContentElement{},
		&models.SoftReference{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed", nil)
	return nil
}

func (a *Application) createIndexes() error {
	if a.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Creating database indexes", nil)

	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_sys_file_missing ON sys_file(missing) WHERE missing = true",
		"CREATE INDEX IF NOT EXISTS idx_sys_file_unsized ON sys_file(id) WHERE width = 0 OR height = 0",
		"CREATE INDEX IF NOT EXISTS idx_processedfile_created_at ON sys_file_processedfile(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tt_content_live ON tt_content(id) WHERE deleted_at IS NULL",
	}

	for _, stmt := range statements {
		if err := a.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (a *Application) initCache() {
	if a.cfg.EnableCache {
		c, err := cache.NewCache(a.cfg.RedisURL, true)
		if err == nil {
			a.cache = c
			return
		}
		logger.Error(err, "Redis unavailable, continuing without cache", map[string]interface{}{"addr": a.cfg.RedisURL})
	}

	a.cache, _ = cache.NewCache("", false)
}

func (a *Application) initRepositories() {
	a.repositories = repositoryContainer{
		File:          repository.NewFileRepository(a.db),
		ProcessedFile: repository.NewProcessedFileRepository(a.db),
		Content:       repository.NewContentRepository(a.db),
		Reference:     repository.NewReferenceRepository(a.db),
	}
}

func (a *Application) initServices() error {
	renderOptions := a.cfg.RenderOptions()

	processor := service.NewImageProcessor(a.repositories.File, a.repositories.ProcessedFile, service.ImageProcessorOptions{
		StorageDir:      a.cfg.StorageDir,
		PublicBaseURL:   a.cfg.PublicBaseURL,
		ProcessedFolder: a.cfg.ProcessedFolder,
		MaxSourceSize:   a.cfg.MaxSourceSize,
	})

	assets := service.NewAssetService(a.repositories.File, processor, a.cache, service.AssetServiceOptions{
		StorageDir:    a.cfg.StorageDir,
		PublicBaseURL: a.cfg.PublicBaseURL,
		AllowedTables: a.cfg.AllowedFileTables,
		CacheTTL:      a.cfg.AssetTTL,
	})

	resolver := imagerender.NewResolver(assets, validator.NewSVGSanitizer(), renderOptions)
	adapter := imagerender.NewAdapter(resolver, renderOptions)

	render := service.NewContentRenderService(adapter, a.repositories.Content, a.cache, a.cfg.AssetTTL)
	if a.cfg.EnableMetrics {
		if err := render.RegisterMetrics(a.options.Registerer); err != nil {
			return fmt.Errorf("failed to register render metrics: %w", err)
		}
	}

	refValidator := reference.NewValidator(resolver, assets, reference.ValidatorOptions{
		PublicBaseURL:   a.cfg.PublicBaseURL,
		ProcessedFolder: a.cfg.ProcessedFolder,
		SiteURL:         a.cfg.SiteURL,
		Workers:         a.cfg.ValidatorWorkers,
	})

	a.services = serviceContainer{
		Processor: processor,
		Asset:     assets,
		Render:    render,
		Reference: service.NewReferenceService(a.repositories.Content, a.repositories.Reference, refValidator, assets, render, a.cfg.ScanBatchSize),
		Upload:    service.NewUploadService(a.repositories.File, processor, assets, a.cfg.StorageDir, a.cfg.MaxUploadSize),
	}

	return nil
}

func (a *Application) initHandlers() {
	a.handlers = handlerContainer{
		Render:    handlers.NewRenderHandler(a.services.Render),
		Reference: handlers.NewReferenceHandler(a.services.Reference),
		Upload:    handlers.NewUploadHandler(a.services.Upload, a.cfg.PublicBaseURL),
	}
}

func (a *Application) initScheduler() error {
	a.scheduler = background.NewScheduler(background.SchedulerConfig{WorkerCount: 1, QueueSize: 4})
	a.scheduler.Start(context.Background())

	if !a.cfg.EnableScheduledValidation {
		return nil
	}

	job := background.NewReferenceValidationJob(a.services.Reference, a.cfg.ValidationInterval)
	if err := a.scheduler.Every(a.cfg.ValidationInterval, job); err != nil {
		return fmt.Errorf("failed to schedule reference validation: %w", err)
	}
	return nil
}

func (a *Application) initRouter() {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a.rateLimiter = middleware.NewRateLimitManager(context.Background())

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(logger.GinLogger())
	if a.cfg.EnableMetrics {
		router.Use(middleware.MetricsMiddleware())
	}
	router.Use(middleware.WithRateLimitManager(a.rateLimiter))
	router.Use(middleware.RateLimitMiddleware(a.cfg))
	router.Use(middleware.SecurityHeadersMiddleware(imageOrigins(a.cfg)))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-CSRF-Token", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(a.scheduler))

	if a.cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	if strings.HasPrefix(a.cfg.PublicBaseURL, "/") {
		storage := router.Group(a.cfg.PublicBaseURL, middleware.StorageProtection())
		storage.Static("/", a.cfg.StorageDir)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.NoIndexMiddleware())
	v1.Use(middleware.CSRFMiddleware())
	{
		public := v1.Group("")
		{
			public.POST("/render", a.handlers.Render.RenderFragment)
			public.POST("/render/content", a.handlers.Render.RenderContent)
			public.GET("/content/:id/rendered", a.handlers.Render.RenderRecord)
			public.GET("/references/:table/:id", a.handlers.Reference.List)
		}

		editor := v1.Group("")
		editor.Use(middleware.AuthMiddleware(a.cfg.JWTSecret))
		editor.Use(middleware.RequirePermission(authorization.PermissionManageFiles))
		{
			editor.POST("/files", middleware.UploadRateLimitMiddleware(a.cfg), a.handlers.Upload.Upload)
			editor.GET("/files/:id", a.handlers.Upload.Get)
			editor.PUT("/files/:id", a.handlers.Upload.Update)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(a.cfg.JWTSecret))
		{
			admin.DELETE("/files/:id", middleware.RequirePermission(authorization.PermissionDeleteFiles), a.handlers.Upload.Delete)

			references := admin.Group("/references", middleware.RequirePermission(authorization.PermissionMaintainReferences))
			references.GET("/validate", a.handlers.Reference.Validate)
			references.POST("/fix", a.handlers.Reference.Fix)
			references.POST("/reindex", a.handlers.Reference.Reindex)

			admin.GET("/stats", middleware.RequirePermission(authorization.PermissionViewStatistics), handlers.GetStatistics(a.db))
			if a.cache.Enabled() {
				admin.DELETE("/cache", middleware.RequirePermission(authorization.PermissionManageCache), handlers.ClearCache(a.cache))
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})

	a.router = router
}

// imageOrigins lists the origins rendered images may point at besides the API itself.
func imageOrigins(cfg *config.Config) []string {
	var origins []string
	if strings.HasPrefix(cfg.SiteURL, "http://") || strings.HasPrefix(cfg.SiteURL, "https://") {
		origins = append(origins, cfg.SiteURL)
	}
	if strings.HasPrefix(cfg.PublicBaseURL, "http://") || strings.HasPrefix(cfg.PublicBaseURL, "https://") {
		origins = append(origins, cfg.PublicBaseURL)
	}
	return origins
}
