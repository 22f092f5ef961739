package router

import (
	"time"

	"traceability/internal/config"
	"traceability/internal/handler"
	"traceability/internal/infra"
	"traceability/internal/middleware"
	"traceability/internal/repository"
	"traceability/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators built by the composition root.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Notifier service.RecallNotifier // nil disables recall notification
	Breaker  *infra.Breaker         // mail breaker, reported by /health
}

// TraversalConfig maps configuration onto traversal bounds.
func TraversalConfig(cfg *config.Config) service.TraversalConfig {
	return service.TraversalConfig{
		DefaultDepth: cfg.TraversalDefaultDepth,
		MaxDepth:     cfg.TraversalMaxDepth,
		RecallDepth:  cfg.RecallMaxDepth,
		NodeLimit:    cfg.TraversalNodeLimit,
	}
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// order matters
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.NewRateLimiter(1000, time.Minute).Handler())

	// ── Repositories ─────────────────────────────────────────────────────────
	lotRepo := repository.NewLotRepository(deps.DB)
	serialRepo := repository.NewSerialRepository(deps.DB)
	linkRepo := repository.NewLinkRepository(deps.DB)
	genealogyRepo := repository.NewGenealogyRepository(deps.DB)
	graph := repository.NewGraphReader(deps.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	traversalCfg := TraversalConfig(cfg)
	genealogySvc := service.NewGenealogyService(genealogyRepo)
	lotSvc := service.NewLotService(lotRepo, genealogySvc)
	serialSvc := service.NewSerialService(serialRepo, lotRepo, genealogySvc)
	linkSvc := service.NewLinkService(linkRepo, lotRepo, serialRepo, genealogySvc)
	traversalSvc := service.NewTraversalService(graph, traversalCfg)
	lookup := service.NewLotLookup(lotRepo, deps.Redis, cfg.LotLookupCacheTTL)
	recallSvc := service.NewRecallService(lookup, graph, traversalCfg, deps.Notifier)

	// ── Handlers ─────────────────────────────────────────────────────────────
	lotsH := handler.NewLotsHandler(lotSvc, cfg.ConflictRetryAttempts)
	serialsH := handler.NewSerialsHandler(serialSvc, cfg.ConflictRetryAttempts)
	linksH := handler.NewLinksHandler(linkSvc)
	genealogyH := handler.NewGenealogyHandler(genealogySvc, traversalSvc)
	recallH := handler.NewRecallHandler(recallSvc)

	// ── Routes ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(deps.DB, deps.Redis, deps.Breaker))

	tenant := middleware.JWTAuth(cfg.JWTSecret)
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		tenant = middleware.HeaderTenant()
	}
	v1 := r.Group("/v1", tenant)
	{
		lots := v1.Group("/lots")
		{
			lots.POST("", lotsH.Create)
			lots.GET("", lotsH.List)
			lots.GET("/by-number/:lot_number", lotsH.GetByNumber)
			lots.GET("/:id", lotsH.Get)
			lots.POST("/:id/reserve", lotsH.Reserve())
			lots.POST("/:id/consume", lotsH.Consume())
			lots.POST("/:id/release", lotsH.Release())
			lots.POST("/:id/adjust", lotsH.Adjust())
			lots.POST("/:id/relocate", lotsH.Relocate())
			// quality disposition and removal are quality-team decisions
			lots.POST("/:id/quality-status", middleware.RequireRole(middleware.RoleQuality), lotsH.QualityStatus())
			lots.DELETE("/:id", middleware.RequireRole(middleware.RoleQuality), lotsH.Deactivate)
		}

		serials := v1.Group("/serials")
		{
			serials.POST("", serialsH.Register)
			serials.GET("", serialsH.List)
			serials.GET("/:id", serialsH.Get)
			serials.POST("/:id/reserve", serialsH.Reserve())
			serials.POST("/:id/ship", serialsH.Ship())
			serials.POST("/:id/install", serialsH.Install())
			serials.POST("/:id/in-service", serialsH.PutInService())
			serials.POST("/:id/scrap", serialsH.Scrap())
			serials.POST("/:id/return", serialsH.Return())
			serials.POST("/:id/return-to-stock", serialsH.ReturnToStock())
		}

		v1.POST("/links", linksH.Create)
		v1.GET("/links", linksH.List)

		gen := v1.Group("/genealogy")
		{
			gen.GET("/:entity_type/:entity_id/history", genealogyH.History)
			gen.GET("/:entity_type/:entity_id/state-at", genealogyH.StateAt)
			gen.POST("/where-used", genealogyH.WhereUsed)
			gen.POST("/where-from", genealogyH.WhereFrom)
		}

		v1.POST("/recall-reports", middleware.RequireRole(middleware.RoleQuality), recallH.Generate)
	}

	// Swagger UI, only outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
