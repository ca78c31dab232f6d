package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/laserpanama/legal-practice-stack/internal/api/handlers"
	"github.com/laserpanama/legal-practice-stack/internal/api/middleware"
	"github.com/laserpanama/legal-practice-stack/internal/auth"
	"github.com/laserpanama/legal-practice-stack/internal/notify"
	"github.com/laserpanama/legal-practice-stack/internal/reports"
	"github.com/laserpanama/legal-practice-stack/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	engine         *gin.Engine
	logger         *zap.Logger
	requestHandler *handlers.RequestHandler
	reportHandler  *handlers.ReportHandler
	wsHandler      *handlers.WSHandler
	authMiddleware *middleware.AuthMiddleware
	reqMiddleware  *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	signatureService *services.SignatureService,
	aggregator *reports.Aggregator,
	hub *notify.Hub,
	verifier *auth.Verifier,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())

	return &Router{
		engine:         engine,
		logger:         logger,
		requestHandler: handlers.NewRequestHandler(signatureService, logger),
		reportHandler:  handlers.NewReportHandler(aggregator, logger),
		wsHandler:      handlers.NewWSHandler(hub, logger),
		authMiddleware: authMiddleware,
		reqMiddleware:  reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "signature-lifecycle"})
	})
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authorized := r.engine.Group("/api")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.POST("/requests", r.requestHandler.Create)
		authorized.GET("/requests/:id", r.requestHandler.Get)
		authorized.POST("/requests/:id/send", r.requestHandler.Send)
		authorized.POST("/requests/:id/view", r.requestHandler.MarkViewed)
		authorized.POST("/requests/:id/sign", r.requestHandler.Sign)
		authorized.POST("/requests/:id/reject", r.requestHandler.Reject)
		authorized.POST("/requests/:id/cancel", r.requestHandler.Cancel)
	}

	admin := r.engine.Group("/api")
	admin.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireAdmin())
	{
		admin.GET("/requests/:id/trail", r.requestHandler.Trail)
		admin.POST("/requests/:id/verify", r.requestHandler.VerifyCompliance)
		admin.GET("/reports/summary", r.reportHandler.Summary)
		admin.GET("/reports/statistics", r.reportHandler.Statistics)
		admin.GET("/reports/export.csv", r.reportHandler.ExportCSV)
	}

	ws := r.engine.Group("/ws")
	ws.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireAdmin())
	{
		ws.GET("", r.wsHandler.Connect)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
