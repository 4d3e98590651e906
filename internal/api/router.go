// Package api wires together all HTTP routes of the MRO backend.
//
// Route grouping:
//   - Reference data (cities, tool rooms, tools, dashboard) and the audit history are public
//     reads behind the rate limiter.
//   - Work orders, their items and customers accept the acting user from the request body or
//     the X-User-ID header.
//   - Mutating aircraft and labor-kit routes require a bearer token. The token's principal
//     becomes the audit user and the created_by/updated_by value.
//
// Every request passes through RequestContextMiddleware, so audit records written by the
// repositories always carry the session and client address of the request that caused them.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/catalog"
	"github.com/cirrus-mro/cirrus-api/internal/api/fleet"
	"github.com/cirrus-mro/cirrus-api/internal/api/history"
	"github.com/cirrus-mro/cirrus-api/internal/api/laborkits"
	"github.com/cirrus-mro/cirrus-api/internal/api/workorders"
	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/auth/azuread"
	"github.com/cirrus-mro/cirrus-api/internal/config"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
	"github.com/cirrus-mro/cirrus-api/internal/middleware"
	"github.com/cirrus-mro/cirrus-api/internal/validation"
)

// Version is the server version reported by /version. Overridden at build time with
// -ldflags "-X github.com/cirrus-mro/cirrus-api/internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds references to background resources that must be stopped during
// graceful shutdown. The caller (cmd/server) is responsible for calling Shutdown() when the
// process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []middleware.Limiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP server has
// been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// AuditServices is the audit wiring shared by the router and the command-line tools
type AuditServices struct {
	Registry *audit.Registry
	Queries  *audit.QueryService
}

// NewAuditServices registers the auditable entities and the work order -> item child
// collection. A *audit.MissingCapabilityError means a model lost part of the Auditable
// contract and the server must not start.
func NewAuditServices(db *sqlx.DB, excludeFields []string) (*AuditServices, error) {
	store := repositories.NewAuditRepository(db)

	registry := audit.NewRegistry(audit.NewRecorder(store, excludeFields...))
	if err := registry.Register(models.AuditedEntities()...); err != nil {
		return nil, err
	}

	queries := audit.NewQueryService(store)
	queries.RegisterChildCollection(audit.ChildCollection{
		ParentType: audit.ResolveEntityType(&models.WorkOrder{}),
		ChildType:  audit.ResolveEntityType(&models.WorkOrderItem{}),
		ForeignKey: "work_order_id",
		LabelField: "item_number",
		Parents:    repositories.NewWorkOrderRepository(db, registry),
	})

	return &AuditServices{Registry: registry, Queries: queries}, nil
}

// newVerifier selects Azure AD when it is enabled and locally signed HS256 tokens otherwise
func newVerifier(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, error) {
	if cfg.Auth.AzureAD.Enabled {
		v, err := azuread.NewVerifier(ctx, &cfg.Auth.AzureAD)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Azure AD verifier: %w", err)
		}
		slog.Info("bearer tokens verified against Azure AD", "tenant_id", v.TenantID())
		return v, nil
	}
	slog.Info("bearer tokens verified as HS256 tokens", "issuer", cfg.Auth.JWT.Issuer)
	return auth.HS256Verifier{Issuer: cfg.Auth.JWT.Issuer}, nil
}

// NewRouter creates and configures the Gin router
func NewRouter(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterGinValidators(); err != nil {
		return nil, nil, err
	}

	auditServices, err := NewAuditServices(db, cfg.Audit.ExcludeFields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register auditable entities: %w", err)
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	bg := &BackgroundServices{}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestContextMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	if cfg.Security.RateLimiting.Enabled {
		limiter, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	// System endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, auditServices.Registry))
	router.GET("/version", versionHandler())

	requireAuth := middleware.AuthMiddleware(verifier)

	apiV1 := router.Group("/api/v1")
	{
		cityHandlers := catalog.NewCityHandlers(db)
		apiV1.GET("/cities", cityHandlers.ListCitiesHandler())
		apiV1.GET("/cities/:id", cityHandlers.GetCityHandler())
		apiV1.GET("/tool-rooms", cityHandlers.ListToolRoomsHandler())
		apiV1.GET("/dashboard/work-order-counts-by-city", cityHandlers.WorkOrderCountsByCityHandler())

		toolHandlers := catalog.NewToolHandlers(db)
		apiV1.GET("/tools", toolHandlers.ListToolsHandler())
		apiV1.GET("/tools/:id", toolHandlers.GetToolHandler())

		aircraftHandlers := fleet.NewAircraftHandlers(db)
		aircraftGroup := apiV1.Group("/aircraft")
		{
			aircraftGroup.GET("", aircraftHandlers.ListAircraftHandler())
			aircraftGroup.GET("/:id", aircraftHandlers.GetAircraftHandler())
			aircraftGroup.POST("", requireAuth, aircraftHandlers.CreateAircraftHandler())
			aircraftGroup.PUT("/:id", requireAuth, aircraftHandlers.UpdateAircraftHandler())
			aircraftGroup.DELETE("/:id", requireAuth, aircraftHandlers.DeleteAircraftHandler())
		}

		customerHandlers := fleet.NewCustomerHandlers(db)
		customersGroup := apiV1.Group("/customers")
		{
			customersGroup.GET("", customerHandlers.ListCustomersHandler())
			customersGroup.POST("", customerHandlers.CreateCustomerHandler())
			customersGroup.GET("/:id", customerHandlers.GetCustomerHandler())
			customersGroup.PUT("/:id", customerHandlers.UpdateCustomerHandler())
			customersGroup.DELETE("/:id", customerHandlers.DeleteCustomerHandler())
			customersGroup.GET("/:id/aircraft", customerHandlers.ListCustomerAircraftHandler())
			customersGroup.POST("/:id/aircraft/:aircraft_id", customerHandlers.LinkAircraftHandler())
			customersGroup.DELETE("/:id/aircraft/:aircraft_id", customerHandlers.UnlinkAircraftHandler())
			customersGroup.PUT("/:id/aircraft/:aircraft_id/primary", customerHandlers.SetPrimaryHandler())
		}

		woHandlers := workorders.NewHandlers(db, auditServices.Registry)
		woGroup := apiV1.Group("/work-orders")
		{
			woGroup.GET("", woHandlers.ListWorkOrdersHandler())
			woGroup.POST("", woHandlers.CreateWorkOrderHandler())
			woGroup.GET("/:id", woHandlers.GetWorkOrderHandler())
			woGroup.PUT("/:id", woHandlers.UpdateWorkOrderHandler())
			woGroup.DELETE("/:id", woHandlers.DeleteWorkOrderHandler())

			woGroup.GET("/:id/items", woHandlers.ListItemsHandler())
			woGroup.POST("/:id/items", woHandlers.CreateItemHandler())
			woGroup.GET("/:id/items/:item_id", woHandlers.GetItemHandler())
			woGroup.PUT("/:id/items/:item_id", woHandlers.UpdateItemHandler())
			woGroup.DELETE("/:id/items/:item_id", woHandlers.DeleteItemHandler())
		}

		kitHandlers := laborkits.NewHandlers(db, auditServices.Registry)
		kitsGroup := apiV1.Group("/labor-kits")
		{
			kitsGroup.GET("", kitHandlers.ListKitsHandler())
			kitsGroup.GET("/:id", kitHandlers.GetKitHandler())
			kitsGroup.GET("/:id/items", kitHandlers.ListItemsHandler())
			kitsGroup.GET("/:id/items/:item_id", kitHandlers.GetItemHandler())

			kitsWrite := kitsGroup.Group("")
			kitsWrite.Use(requireAuth)
			kitsWrite.POST("", kitHandlers.CreateKitHandler())
			kitsWrite.PUT("/:id", kitHandlers.UpdateKitHandler())
			kitsWrite.DELETE("/:id", kitHandlers.DeleteKitHandler())
			kitsWrite.POST("/:id/items", kitHandlers.CreateItemHandler())
			kitsWrite.PUT("/:id/items/:item_id", kitHandlers.UpdateItemHandler())
			kitsWrite.DELETE("/:id/items/:item_id", kitHandlers.DeleteItemHandler())
			kitsWrite.POST("/:id/apply/:work_order_id", kitHandlers.ApplyKitHandler())
		}

		historyHandlers := history.NewHandlers(auditServices.Queries)
		apiV1.GET("/audit/:entity_type/:entity_id", historyHandlers.GetHistoryHandler())
		apiV1.GET("/audit/:entity_type/:entity_id/combined", historyHandlers.GetCombinedHistoryHandler())
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity, and echoes the audit context the request was given.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time, context: {user_id, session_id, ip_address}"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		resp := gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if rc, err := audit.FromGin(c); err == nil {
			resp["context"] = rc
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic: the database answers and the auditable entities are registered.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service
func readinessHandler(db *sqlx.DB, registry *audit.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if len(registry.EntityTypes()) == 0 {
			checks["audit"] = "unregistered"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "no auditable entities registered",
			})
			return
		}
		checks["audit"] = registry.EntityTypes()

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the server version and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
