package middleware

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "net/http"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/redis/go-redis/v9"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
)

const (
  IdempotencyHeader   = "Idempotency-Key"
  processingMarker    = "PROCESSING"
  processingMargin    = 30 * time.Second
  completedTTL        = 24 * time.Hour
)

// ProcessingTTLFor sizes the in-flight claim so it outlives a handler that
// waits up to downstream on a notification provider.
func ProcessingTTLFor(downstream time.Duration) time.Duration {
  if downstream < 0 {
    downstream = 0
  }
  return downstream + processingMargin
}

// IdempotencyStore is the slice of Redis the guard needs.
type IdempotencyStore interface {
  SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
  Get(ctx context.Context, key string) (string, bool, error)
  Set(ctx context.Context, key, value string, ttl time.Duration) error
  Del(ctx context.Context, key string) error
}

type redisIdempotencyStore struct {
  client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) IdempotencyStore {
  if client == nil {
    return nil
  }
  return &redisIdempotencyStore{client: client}
}

func (s *redisIdempotencyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
  return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisIdempotencyStore) Get(ctx context.Context, key string) (string, bool, error) {
  val, err := s.client.Get(ctx, key).Result()
  if err == redis.Nil {
    return "", false, nil
  }
  if err != nil {
    return "", false, err
  }
  return val, true, nil
}

func (s *redisIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
  return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisIdempotencyStore) Del(ctx context.Context, key string) error {
  return s.client.Del(ctx, key).Err()
}

type storedResponse struct {
  Status  int             `json:"status"`
  Body    json.RawMessage `json:"body"`
}

type capturingWriter struct {
  gin.ResponseWriter
  body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
  w.body.Write(b)
  return w.ResponseWriter.Write(b)
}

// Idempotency replays the first completed response for a repeated
// Idempotency-Key from the same user. Requests without the header pass
// through, as does everything when store is nil. Server errors release the
// key so the client can retry. Keys are scoped to the user and the route.
func Idempotency(store IdempotencyStore, log *logger.Logger, processingTTL time.Duration) gin.HandlerFunc {
  mwLog := log.With("Middleware", "Idempotency")
  if processingTTL <= 0 {
    processingTTL = ProcessingTTLFor(0)
  }
  return func(c *gin.Context) {
    key := c.GetHeader(IdempotencyHeader)
    if store == nil || key == "" {
      c.Next()
      return
    }
    ctx := c.Request.Context()
    scope := "anonymous"
    if rd := requestdata.GetRequestData(ctx); rd != nil {
      scope = rd.UserID.String()
    }
    route := c.FullPath()
    if route == "" {
      route = c.Request.URL.Path
    }
    idemKey := fmt.Sprintf("idempotency:%s:%s %s:%s", scope, c.Request.Method, route, key)

    //1) Seen before?
    val, found, err := store.Get(ctx, idemKey)
    if err != nil {
      mwLog.Warn("Idempotency store unavailable, passing through", "error", err)
      c.Next()
      return
    }
    if found {
      replay(c, val)
      return
    }

    //2) Claim the key
    acquired, err := store.SetNX(ctx, idemKey, processingMarker, processingTTL)
    if err != nil {
      mwLog.Warn("Idempotency store unavailable, passing through", "error", err)
      c.Next()
      return
    }
    if !acquired {
      abort(c, http.StatusConflict, "request already in progress", "request_in_progress")
      return
    }

    //3) Run and remember the outcome
    w := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
    c.Writer = w
    c.Next()

    status := w.Status()
    if status >= http.StatusInternalServerError {
      if err := store.Del(context.WithoutCancel(ctx), idemKey); err != nil {
        mwLog.Warn("Failed to release idempotency key", "error", err)
      }
      return
    }
    body := w.body.Bytes()
    if !json.Valid(body) {
      body = []byte("null")
    }
    encoded, err := json.Marshal(storedResponse{Status: status, Body: body})
    if err != nil {
      mwLog.Warn("Failed to encode idempotent response", "error", err)
      return
    }
    if err := store.Set(context.WithoutCancel(ctx), idemKey, string(encoded), completedTTL); err != nil {
      mwLog.Warn("Failed to store idempotent response", "error", err)
    }
  }
}

func replay(c *gin.Context, val string) {
  if val == processingMarker {
    abort(c, http.StatusConflict, "request already in progress", "request_in_progress")
    return
  }
  var stored storedResponse
  if err := json.Unmarshal([]byte(val), &stored); err != nil || stored.Status == 0 {
    abort(c, http.StatusConflict, "request already processed", "request_already_processed")
    return
  }
  c.Header("X-Idempotency-Replayed", "true")
  c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
  c.Abort()
}
