package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/http/handler"
	httpmiddleware "github.com/Staxx7/quickscope-sub003/internal/http/middleware"
	"github.com/Staxx7/quickscope-sub003/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, connections *handler.ConnectionHandler, prospects *handler.ProspectHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	oauth := r.Group("/oauth")
	{
		oauth.GET("/connect", connections.Connect)
		oauth.GET("/callback", connections.Callback)
	}

	api := r.Group("/api")
	{
		api.GET("/connections", connections.List)
		api.DELETE("/connections/:companyId", connections.Disconnect)
		api.POST("/companies/:companyId/sync", connections.SyncCompany)
		api.GET("/companies/:companyId/health-score", connections.HealthScore)

		api.POST("/prospects", prospects.Create)
		api.GET("/prospects", prospects.List)
		api.GET("/prospects/:id", prospects.Get)
		api.POST("/prospects/:id/transcripts", prospects.UploadTranscript)
		api.GET("/prospects/:id/workflow", prospects.WorkflowStatus)
		api.POST("/prospects/:id/reports", prospects.GenerateReport)

		api.POST("/checkout", prospects.CreateCheckout)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	return r
}
