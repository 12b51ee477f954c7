// Package api assembles the HTTP surface of the audit service: the middleware
// chain, route registration with per-route scope requirements, and the
// background jobs that run alongside the server.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/orgsuite/orgsuite/internal/api/auditlogs"
	"github.com/orgsuite/orgsuite/internal/api/tokens"
	"github.com/orgsuite/orgsuite/internal/audit"
	"github.com/orgsuite/orgsuite/internal/auth"
	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
	"github.com/orgsuite/orgsuite/internal/jobs"
	"github.com/orgsuite/orgsuite/internal/middleware"
	"github.com/orgsuite/orgsuite/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	retentionSweeper *jobs.RetentionSweeper
	expiryNotifier   *jobs.TokenExpiryNotifier
	rateLimiters     []*middleware.RateLimiter
	shipper          audit.Shipper
	redisClient      *redis.Client
}

// Shutdown stops all background goroutines and closes shared resources. It
// should be called after the HTTP server has been shut down so that in-flight
// requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionSweeper != nil {
		bg.retentionSweeper.Stop()
	}
	if bg.expiryNotifier != nil {
		bg.expiryNotifier.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewServiceTokenRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Wrap *sql.DB with sqlx for the stats repository
	sqlxDB := sqlx.NewDb(db, "postgres")

	// External log shipping is optional; a misconfigured shipper must not take
	// the whole service down, so failures here only disable shipping.
	var shipperIface audit.Shipper
	if configs := shipperConfigs(cfg.Audit.Shippers); len(configs) > 0 {
		shipper, err := audit.NewMultiShipper(configs)
		if err != nil {
			slog.Error("failed to initialize audit shippers, shipping disabled", "error", err)
		} else {
			shipperIface = shipper
		}
	}

	auditHandlers := auditlogs.NewHandlers(cfg, db, sqlxDB)
	tokenHandlers := tokens.NewHandlers(db)
	if shipperIface != nil {
		auditHandlers.SetShipper(shipperIface)
	}

	// Start the retention sweeper. It no-ops unless audit.retention.enabled is
	// set, so the default deployment purges only on explicit DELETE requests.
	retentionSweeper := jobs.NewRetentionSweeper(auditRepo, &cfg.Audit.Retention)
	safego.Go(func() { retentionSweeper.Start(context.Background()) })
	log.Println("Retention sweeper started")

	// Start the service token expiry notifier
	expiryNotifier := jobs.NewTokenExpiryNotifier(tokenRepo, orgRepo, &cfg.Notifications)
	safego.Go(func() { expiryNotifier.Start(context.Background()) })
	log.Println("Service token expiry notifier started")

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	bg := &BackgroundServices{
		retentionSweeper: retentionSweeper,
		expiryNotifier:   expiryNotifier,
		shipper:          shipperIface,
	}

	// Rate limiting: Redis-backed when Redis is configured so that replicas
	// share one budget per client, in-memory token buckets otherwise.
	var generalLimit, ingestLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		generalCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			generalCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			generalCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}

		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			bg.redisClient = client
			generalLimit = middleware.RedisRateLimitMiddleware(middleware.NewRedisRateLimiter(client, generalCfg))
			ingestLimit = middleware.RedisRateLimitMiddleware(middleware.NewRedisRateLimiter(client, middleware.IngestRateLimitConfig()))
			log.Println("Rate limiting backed by Redis at", cfg.Redis.Addr)
		} else {
			generalLimiter := middleware.NewRateLimiter(generalCfg)
			ingestLimiter := middleware.NewRateLimiter(middleware.IngestRateLimitConfig())
			bg.rateLimiters = []*middleware.RateLimiter{generalLimiter, ingestLimiter}
			generalLimit = middleware.RateLimitMiddleware(generalLimiter)
			ingestLimit = middleware.RateLimitMiddleware(ingestLimiter)
		}
	}

	apiV1 := router.Group("/api/v1")
	if generalLimit != nil {
		apiV1.Use(generalLimit)
	}
	apiV1.Use(middleware.AuthMiddleware(userRepo, tokenRepo))
	apiV1.Use(middleware.RequireFeature(orgRepo, middleware.FeatureAuditLog))
	apiV1.Use(middleware.AuditMiddlewareWithShipper(auditRepo, shipperIface))
	{
		auditGroup := apiV1.Group("/audit-logs")
		{
			auditGroup.GET("", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ListHandler())
			auditGroup.GET("/stats", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.StatsHandler())
			auditGroup.GET("/action-types", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ActionTypesHandler())
			auditGroup.GET("/:id", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.GetHandler())

			createHandlers := []gin.HandlerFunc{middleware.RequireScope(auth.ScopeAuditWrite)}
			if ingestLimit != nil {
				createHandlers = append(createHandlers, ingestLimit)
			}
			createHandlers = append(createHandlers, auditHandlers.CreateHandler())
			auditGroup.POST("", createHandlers...)

			auditGroup.DELETE("", middleware.RequireScope(auth.ScopeAuditAdmin), auditHandlers.PurgeHandler())
		}

		tokenGroup := apiV1.Group("/service-tokens")
		tokenGroup.Use(middleware.RequireScope(auth.ScopeAuditAdmin))
		{
			tokenGroup.GET("", tokenHandlers.ListTokensHandler())
			tokenGroup.POST("", tokenHandlers.CreateTokenHandler())
			tokenGroup.GET("/:id", tokenHandlers.GetTokenHandler())
			tokenGroup.DELETE("/:id", tokenHandlers.RevokeTokenHandler())
		}
	}

	return router, bg
}

// shipperConfigs maps the viper-backed shipper settings onto the audit
// package's config types, dropping disabled entries.
func shipperConfigs(configs []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(configs))
	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		sc := audit.ShipperConfig{
			Enabled: c.Enabled,
			Type:    c.Type,
		}
		if c.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           c.Webhook.URL,
				Headers:       c.Webhook.Headers,
				Timeout:       time.Duration(c.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     c.Webhook.BatchSize,
				FlushInterval: time.Duration(c.Webhook.FlushInterval) * time.Second,
			}
		}
		if c.File != nil {
			sc.File = &audit.FileConfig{
				Path:       c.File.Path,
				MaxSizeMB:  c.File.MaxSizeMB,
				MaxBackups: c.File.MaxBackups,
			}
		}
		out = append(out, sc)
	}
	return out
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Queries never
// degrade gracefully without the database, so readiness is the same probe as
// liveness plus per-check detail for Kubernetes gates.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
