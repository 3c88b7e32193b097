package server

import (
  "io"

  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"

  "github.com/trackside-org/trackside-backend/internal/handlers"
  "github.com/trackside-org/trackside-backend/internal/metrics"
  "github.com/trackside-org/trackside-backend/internal/middleware"
)

type RouterConfig struct {
  AllowedOrigins        []string
  AuthHandler           *handlers.AuthHandler
  AuthMiddleware        *middleware.AuthMiddleware
  MeHandler             *handlers.MeHandler
  TicketHandler         *handlers.TicketHandler
  TransferHandler       *handlers.TransferHandler
  WsHandler             gin.HandlerFunc
  Idempotency           gin.HandlerFunc
  Metrics               *metrics.Metrics
  AccessLog             io.Writer // nil means gin.DefaultWriter
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.New()
  // The websocket upgrade carries its token in the query string.
  router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
    Output:    cfg.AccessLog,
    SkipPaths: []string{"/api/ws"},
  }))
  router.Use(gin.Recovery())

  //-----------------------------------------
  // Cors Setup
  //-----------------------------------------
  router.Use(cors.New(cors.Config{
    AllowOrigins:     cfg.AllowedOrigins,
    AllowMethods:     []string{"GET","POST","PUT","DELETE","PATCH","OPTIONS"},
    AllowHeaders:     []string{"Authorization","Content-Type","X-Requested-With","X-Refresh-Token",middleware.IdempotencyHeader},
    AllowCredentials: true,
  }))

  if cfg.Metrics != nil {
    router.Use(cfg.Metrics.Instrument())
  }

  idem := cfg.Idempotency
  if idem == nil {
    idem = func(c *gin.Context) { c.Next() }
  }

  //-----------------------------------------
  // Health Routes
  //-----------------------------------------
  router.GET("/healthz", handlers.Healthz)
  if cfg.Metrics != nil {
    router.GET("/metrics", cfg.Metrics.Handler())
  }

  //-----------------------------------------
  // Public Routes
  //-----------------------------------------
  api := router.Group("/api")
  {
    api.POST("/register", cfg.AuthHandler.Register)
    api.POST("/login", cfg.AuthHandler.Login)
    api.POST("/refresh", cfg.AuthHandler.Refresh)
    api.GET("/transfer/validate/:token", cfg.TransferHandler.ValidateToken)
    api.GET("/ws", cfg.AuthMiddleware.RequireWebsocketAuth(), cfg.WsHandler)
  }

  //------------------------------------------
  // Protected Routes
  //------------------------------------------
  protected := api.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  protected.POST("/logout", cfg.AuthHandler.Logout)

  //ME
  protected.GET("/me", cfg.MeHandler.GetMe)

  //Tickets
  protected.GET("/tickets", cfg.TicketHandler.ListMyTickets)
  protected.GET("/tickets/:id", cfg.TicketHandler.GetTicket)

  admin := protected.Group("/")
  admin.Use(cfg.AuthMiddleware.RequireRole("admin"))
  admin.POST("/tickets", cfg.TicketHandler.IssueTicket)
  admin.POST("/tickets/:id/cancel", cfg.TicketHandler.CancelTicket)
  admin.POST("/tickets/:id/use", cfg.TicketHandler.MarkTicketUsed)

  //Transfers
  transfer := protected.Group("/transfer")
  transfer.POST("/generate", idem, cfg.TransferHandler.RequestTransfer)
  transfer.POST("/verify", idem, cfg.TransferHandler.VerifyOtp)
  transfer.POST("/resend-otp", cfg.TransferHandler.ResendOtp)
  transfer.POST("/resend-link", cfg.TransferHandler.ResendTransferLink)
  transfer.POST("/complete/:token", idem, cfg.TransferHandler.CompleteTransfer)

  //OTP aliases kept for older clients
  otp := protected.Group("/otp")
  otp.POST("/generate", idem, cfg.TransferHandler.RequestTransfer)
  otp.POST("/verify", idem, cfg.TransferHandler.VerifyOtp)

  return router
}
