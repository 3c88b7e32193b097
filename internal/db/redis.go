package db

import (
  "context"
  "fmt"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

// NewRedisClient connects the shared client used by the websocket fanout and
// the idempotency middleware.
func NewRedisClient(ctx context.Context, log *logger.Logger) (*redis.Client, error) {
  log = log.With("service", "Redis")

  addr := utils.GetEnv("REDIS_ADDRESS", "localhost:6379", log)
  password := utils.GetEnv("REDIS_PASSWORD", "", log)
  dbIndex := utils.GetEnvAsInt("REDIS_DB", 0, log)

  client := redis.NewClient(&redis.Options{
    Addr:         addr,
    Password:     password,
    DB:           dbIndex,
    DialTimeout:  5 * time.Second,
    ReadTimeout:  3 * time.Second,
    WriteTimeout: 3 * time.Second,
  })

  pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
  defer cancel()
  if err := client.Ping(pingCtx).Err(); err != nil {
    log.Error("Failed to ping Redis", "addr", addr, "error", err)
    _ = client.Close()
    return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
  }
  log.Info("Connected to Redis :)", "addr", addr)
  return client, nil
}
