package http

import (
	"github.com/gin-gonic/gin"

	"github.com/brigadepos/edgelink/internal/api/http/handler"
	"github.com/brigadepos/edgelink/internal/api/http/middleware"
	"github.com/brigadepos/edgelink/internal/auth"
	"github.com/brigadepos/edgelink/internal/heartbeat"
	"github.com/brigadepos/edgelink/internal/nodes"
	"github.com/brigadepos/edgelink/internal/operators"
	"github.com/brigadepos/edgelink/internal/pairing"
)

type OnsiteServices struct {
	Pairing   *pairing.Service
	Publisher *heartbeat.Publisher
	Operators *operators.Store
	JWTConfig auth.JWTConfig
}

type CloudServices struct {
	Nodes       *nodes.Service
	AdminAPIKey string
}

// SetupOnsiteRoutes wires the onsite pairing surface. The claim/create
// route requires an authenticated local operator; the consume/finalize
// routes are public by design, their credentials are the claim code and
// finalize token themselves.
func SetupOnsiteRoutes(engine *gin.Engine, srvs *OnsiteServices) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	authHandler := handler.NewAuthHandler(srvs.Operators, srvs.JWTConfig)
	onsiteHandler := handler.NewOnsiteHandler(srvs.Pairing, srvs.Publisher)

	onsite := engine.Group("/onsite")
	{
		onsite.POST("/auth/login", authHandler.Login)
		onsite.GET("/identity", onsiteHandler.Identity)
		onsite.GET("/cloud/link", onsiteHandler.Link)
		onsite.POST("/cloud/heartbeat", onsiteHandler.Heartbeat)

		onsite.POST("/claim/create", middleware.JWTAuth(srvs.JWTConfig.Secret), onsiteHandler.CreateClaim)

		public := onsite.Group("/public")
		{
			public.POST("/claim/consume", onsiteHandler.ConsumeClaim)
			public.POST("/claim/finalize", onsiteHandler.Finalize)
		}
	}
}

// SetupCloudRoutes wires the cloud surface consumed by edge nodes and
// cloud administrators.
func SetupCloudRoutes(engine *gin.Engine, srvs *CloudServices) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	nodeHandler := handler.NewNodeHandler(srvs.Nodes)

	cloud := engine.Group("/cloud")
	{
		cloud.POST("/nodes/register", nodeHandler.Register)
		cloud.POST("/nodes/:nodeId/heartbeat", middleware.NodeAuth(srvs.Nodes), nodeHandler.Heartbeat)

		admin := cloud.Group("/stores", middleware.APIKeyAuth(srvs.AdminAPIKey))
		{
			admin.POST("/:storeId/nodes/bootstrap", nodeHandler.CreateBootstrapToken)
		}
	}
}
