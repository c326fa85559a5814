package api

import (
	"net/http"
	"time"

	"bot-core/internal/account"
	"bot-core/internal/connector"
	"bot-core/internal/events"
	"bot-core/internal/market"
	"bot-core/internal/order"
	"bot-core/internal/safety"
	"bot-core/internal/strategy"
	"bot-core/internal/template"
	"bot-core/pkg/store"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the services and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Store     *store.Store
	Accounts  *account.Service
	Registry  *connector.Registry
	Templates *template.Service
	Orders    *order.Service
	Executor  *order.Router
	Grid      *strategy.GridService
	DCA       *strategy.DCAService
	Momentum  *strategy.MomentumService
	RSI       *strategy.RSIService
	Candle    *strategy.CandleStrikeService
	Locker    *safety.Locker
	Hub       *market.Hub
	JWTSecret string
	Meta      SystemMeta

	// LockManual makes manual orders respect the candle strike family lock.
	LockManual bool
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	UseMockFeed bool
	Pairs       []string
	Version     string
}

func NewServer(s *Server) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware()) // Rate limiting
	r.Use(CORSMiddleware())      // CORS (last before routes)

	s.Router = r
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/templates", s.listTemplates)
			protected.POST("/templates", s.createTemplate)
			protected.GET("/templates/:id", s.getTemplate)
			protected.PUT("/templates/:id", s.updateTemplate)
			protected.DELETE("/templates/:id", s.deleteTemplate)

			protected.GET("/accounts", s.listAccounts)
			protected.POST("/accounts", s.createAccount)
			protected.DELETE("/accounts/:id", s.deleteAccount)

			protected.GET("/orders", s.listOrders)
			protected.POST("/orders", s.createOrder)
			protected.POST("/orders/:id/close", s.closeOrder)
			protected.POST("/orders/:id/cancel", s.cancelOrder)
			protected.GET("/deals", s.listDeals)

			protected.GET("/market/:pair", s.getMarketData)
			protected.GET("/safety/lock/:family", s.getFamilyLock)

			bots := protected.Group("/bots")
			{
				s.gridRoutes(bots.Group("/grid"))
				s.dcaRoutes(bots.Group("/dca"))
				s.momentumRoutes(bots.Group("/momentum"))
				s.rsiRoutes(bots.Group("/rsi"))
				s.candleRoutes(bots.Group("/candlestrike"))
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getSystemStatus exposes runtime mode for the dashboard.
func (s *Server) getSystemStatus(c *gin.Context) {
	mode := "LIVE"
	if s.Meta.UseMockFeed {
		mode = "MOCK"
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":          mode,
		"use_mock_feed": s.Meta.UseMockFeed,
		"pairs":         s.Meta.Pairs,
		"tracked_pairs": s.Hub.Prices.Len(),
		"version":       s.Meta.Version,
		"server_time":   time.Now().UTC(),
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
