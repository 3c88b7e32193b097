package main

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/collectors"
  "github.com/redis/go-redis/v9"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/utils"
  "github.com/trackside-org/trackside-backend/internal/db"
  "github.com/trackside-org/trackside-backend/internal/events"
  "github.com/trackside-org/trackside-backend/internal/metrics"
  "github.com/trackside-org/trackside-backend/internal/seed"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/services"
  "github.com/trackside-org/trackside-backend/internal/socket"
  "github.com/trackside-org/trackside-backend/internal/handlers"
  "github.com/trackside-org/trackside-backend/internal/middleware"
  "github.com/trackside-org/trackside-backend/internal/server"
  "github.com/trackside-org/trackside-backend/internal/types"
)

func main() {
  // Logger Setup
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  // Environment Variables
  log.Info("Attempting to load environment variables for Main now...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  clientURL := utils.GetEnv("CLIENT_URL", "http://localhost:5173", log)
  otpMaxAttempts := utils.GetEnvAsInt("OTP_MAX_ATTEMPTS", 5, log)
  supersedeOnVerify := utils.GetEnvAsBool("OTP_SUPERSEDE_ON_VERIFY", true, log)
  transferLimitDefault := utils.GetEnvAsInt("TRANSFER_LIMIT_DEFAULT", types.DefaultTransferLimit, log)
  notificationTimeout := utils.GetEnvAsInt("NOTIFICATION_TIMEOUT_SECONDS", 10, log)
  reaperInterval := utils.GetEnvAsInt("REAPER_INTERVAL_SECONDS", 300, log)
  kafkaBrokers := utils.GetEnvAsList("KAFKA_BROKERS", nil, log)
  kafkaTopic := utils.GetEnv("KAFKA_TOPIC", "ticket-transfer-events", log)
  allowedOrigins := utils.GetEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}, log)
  log.Debug("Environment variables loaded for Main :)",
    "accessTokenTTL", accessTokenTTL,
    "refreshTokenTTL", refreshTokenTTL,
    "clientURL", clientURL,
    "otpMaxAttempts", otpMaxAttempts,
    "supersedeOnVerify", supersedeOnVerify,
    "transferLimitDefault", transferLimitDefault,
    "kafkaBrokers", kafkaBrokers,
  )

  // Postgres Setup
  log.Info("Setting Up Postgres from Main now...")
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Fatal error: DB init failed", "error", err)
    os.Exit(1)
  }
  defer postgresService.Close()
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()
  txr := db.NewTransactor(thePG)
  log.Info("Postgres Setup From Main Successful :)")

  // Repositories Setup
  log.Info("Setting Up Repositories from Main now...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  ticketRepo := repos.NewTicketRepo(thePG, log)
  oneTimeCodeRepo := repos.NewOneTimeCodeRepo(thePG, log)
  transferTokenRepo := repos.NewTransferTokenRepo(thePG, log)
  log.Info("Repositories Set Up From Main Successful :)")

  // Seed Setup
  log.Info("Attempting to Seed The Postgres From Main now...")
  if err := seed.SeedAll(thePG, userRepo); err != nil {
    log.Warn("Failed to seed data :(", "error", err)
  }

  // Redis Setup
  log.Info("Setting Up Redis From Main Now...")
  var redisClient *redis.Client
  redisClient, err = db.NewRedisClient(ctx, log)
  if err != nil {
    log.Warn("Redis unavailable, running without pubsub and idempotency", "error", err)
    redisClient = nil
  } else {
    defer redisClient.Close()
  }

  // Websocket Setup
  log.Info("Setting Up Websocket Hub From Main Now :)")
  wsHub := socket.NewHub(log)
  var redisPubSub *socket.RedisPubSub
  if redisClient != nil {
    redisPubSub = socket.NewRedisPubSub(log, redisClient, "trackside_hub_broadcast")
    if err := redisPubSub.StartSubscriber(wsHub); err != nil {
      log.Warn("Failed to subscribe to Redis pub/sub", "error", err)
      redisPubSub = nil
    } else {
      wsHub.SetRedisPubSub(redisPubSub)
      log.Info("Redis pubsub is active!")
    }
  }

  // Event Publishers
  registry := prometheus.NewRegistry()
  registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
  appMetrics := metrics.New(registry)
  sinks := []events.Publisher{wsHub, appMetrics}
  if len(kafkaBrokers) > 0 {
    kafkaPublisher := events.NewKafkaPublisher(events.KafkaConfig{Brokers: kafkaBrokers, Topic: kafkaTopic}, log)
    defer kafkaPublisher.Close()
    sinks = append(sinks, kafkaPublisher)
    log.Info("Kafka publisher is active!", "topic", kafkaTopic)
  }
  publisher := events.NewMultiPublisher(log, sinks...)

  // Services Setup
  log.Info("Setting up Services from Main now...")
  emailService, err := services.NewEmailService(log)
  if err != nil {
    log.Warn("Could not init EmailService", "error", err)
  }
  textService, err := services.NewTextService(log)
  if err != nil {
    log.Warn("Could not init TextService", "error", err)
  }
  notifier := services.NewNotificationGateway(
    log,
    emailService,
    textService,
    time.Duration(notificationTimeout)*time.Second,
    utils.GetEnv("EMAIL_LOGO_URL", "", log),
  )

  var passService services.PassService
  if bucketName := utils.GetEnv("GCS_BUCKET_NAME", "", log); bucketName != "" {
    bucketService, err := services.NewBucketService(ctx, log, bucketName, utils.GetEnv("GCS_CREDENTIALS_FILE", "", log))
    if err != nil {
      log.Warn("Could not init BucketService, passes disabled", "error", err)
    } else {
      defer bucketService.Close()
      passService, err = services.NewPassService(
        log,
        ticketRepo,
        bucketService,
        utils.GetEnv("PASS_FONT_PATH", "", log),
        utils.GetEnv("PASS_LOGO_PATH", "", log),
      )
      if err != nil {
        log.Warn("Could not init PassService, passes disabled", "error", err)
        passService = nil
      }
    }
  }

  authService := services.NewAuthService(txr, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  meService := services.NewMeService(log, userRepo)
  ticketService := services.NewTicketService(log, userRepo, ticketRepo, publisher, passService, transferLimitDefault)
  transferService := services.NewTransferService(
    log,
    txr,
    userRepo,
    ticketRepo,
    oneTimeCodeRepo,
    transferTokenRepo,
    notifier,
    publisher,
    passService,
    services.TransferConfig{
      ClientURL:         clientURL,
      MaxOtpAttempts:    otpMaxAttempts,
      SupersedeOnVerify: supersedeOnVerify,
    },
  )
  reaper := services.NewReaper(log, ticketRepo, oneTimeCodeRepo, transferTokenRepo, time.Duration(reaperInterval)*time.Second)
  reaper.Start(ctx)
  defer reaper.Stop()
  log.Info("Services Set Up From Main Successful :)")

  // Handler Setup
  log.Info("Setting Up Handlers from Main now...")
  authHandler := handlers.NewAuthHandler(authService)
  meHandler := handlers.NewMeHandler(meService)
  ticketHandler := handlers.NewTicketHandler(ticketService)
  transferHandler := handlers.NewTransferHandler(transferService)
  wsHandler := handlers.WsHandler(wsHub, log)

  // MiddleWare Setup
  log.Info("Setting Up Middleware from Main now...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)
  idempotency := middleware.Idempotency(
    middleware.NewRedisIdempotencyStore(redisClient),
    log,
    middleware.ProcessingTTLFor(time.Duration(notificationTimeout)*time.Second),
  )

  // Router Setup
  log.Info("Setting Up Router from Main now...")
  router := server.NewRouter(server.RouterConfig{
    AllowedOrigins:         allowedOrigins,
    AuthHandler:            authHandler,
    AuthMiddleware:         authMiddleware,
    MeHandler:              meHandler,
    TicketHandler:          ticketHandler,
    TransferHandler:        transferHandler,
    WsHandler:              wsHandler,
    Idempotency:            idempotency,
    Metrics:                appMetrics,
  })

  port := utils.GetEnv("PORT", "8080", log)
  srv := &http.Server{
    Addr:              ":" + port,
    Handler:           router,
    ReadHeaderTimeout: 10 * time.Second,
  }
  go func() {
    log.Info("Server listening", "port", port)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      log.Error("Server failed", "error", err)
      stop()
    }
  }()

  // On Shutdown
  <-ctx.Done()
  log.Info("Shutting down server...")
  shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
  defer cancel()
  if err := srv.Shutdown(shutdownCtx); err != nil {
    log.Warn("Graceful shutdown failed", "error", err)
  }
  if redisPubSub != nil {
    redisPubSub.Stop()
  }
}
