package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/larder/internal/branch"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	"github.com/smallbiznis/larder/internal/closing"
	closingdomain "github.com/smallbiznis/larder/internal/closing/domain"
	"github.com/smallbiznis/larder/internal/config"
	"github.com/smallbiznis/larder/internal/extraction"
	"github.com/smallbiznis/larder/internal/ingredient"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	"github.com/smallbiznis/larder/internal/invoice"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
	"github.com/smallbiznis/larder/internal/ledger"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	"github.com/smallbiznis/larder/internal/observability"
	obsmiddleware "github.com/smallbiznis/larder/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/larder/internal/observability/metrics"
	obstracing "github.com/smallbiznis/larder/internal/observability/tracing"
	"github.com/smallbiznis/larder/internal/quota"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"github.com/smallbiznis/larder/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	branch.Module,
	ingredient.Module,
	ledger.Module,
	invoice.Module,
	closing.Module,
	quota.Module,
	extraction.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	branchSvc     branchdomain.Service
	ingredientSvc ingredientdomain.Service
	ledgerSvc     ledgerdomain.Service
	invoiceSvc    invoicedomain.Service
	closingSvc    closingdomain.Service
	quotaSvc      quotadomain.Service
	extractor     *extraction.Client
	scanLimiter   *ratelimit.ScanLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	BranchSvc     branchdomain.Service
	IngredientSvc ingredientdomain.Service
	LedgerSvc     ledgerdomain.Service
	InvoiceSvc    invoicedomain.Service
	ClosingSvc    closingdomain.Service
	QuotaSvc      quotadomain.Service
	Extractor     *extraction.Client
	ScanLimiter   *ratelimit.ScanLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		branchSvc:     p.BranchSvc,
		ingredientSvc: p.IngredientSvc,
		ledgerSvc:     p.LedgerSvc,
		invoiceSvc:    p.InvoiceSvc,
		closingSvc:    p.ClosingSvc,
		quotaSvc:      p.QuotaSvc,
		extractor:     p.Extractor,
		scanLimiter:   p.ScanLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Branches --------
	api.GET("/branches", s.ListBranches)
	api.POST("/branches", s.CreateBranch)

	// -------- Ingredient catalog --------
	api.GET("/ingredients", s.ListIngredients)
	api.POST("/ingredients", s.CreateIngredient)
	api.GET("/ingredients/:id", s.GetIngredientByID)
	api.PATCH("/ingredients/:id", s.UpdateIngredient)

	// -------- Stock ledger --------
	api.GET("/movements", s.ListMovements)
	api.POST("/movements", s.RecordMovement)
	api.GET("/movements/:id", s.GetMovementByID)
	api.PATCH("/movements/:id", s.UpdateMovement)
	api.DELETE("/movements/:id", s.DeleteMovement)

	// -------- Invoice workflow --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.IntakeInvoice)
	api.POST("/invoices/scan", s.ScanRateLimit(), s.ScanInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.POST("/invoices/:id/inspect", s.StartInvoiceInspection)
	api.PATCH("/invoices/:id/items/:itemId", s.UpdateInvoiceItem)
	api.POST("/invoices/:id/confirm", s.ConfirmInvoice)
	api.POST("/invoices/:id/dispute", s.DisputeInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)

	// -------- Daily closing --------
	api.GET("/closings", s.ListClosings)
	api.POST("/closings", s.SaveClosingDraft)
	api.GET("/closings/:id", s.GetClosingByID)
	api.POST("/closings/:id/complete", s.CompleteClosing)
	api.DELETE("/closings/:id", s.DeleteClosing)

	// -------- Quota usage --------
	api.GET("/usage", s.GetUsage)
}
