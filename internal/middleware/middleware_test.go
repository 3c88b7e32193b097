package middleware

import (
  "context"
  "encoding/json"
  "errors"
  "net/http"
  "net/http/httptest"
  "sync"
  "testing"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
  "github.com/trackside-org/trackside-backend/internal/types"
)

func init() {
  gin.SetMode(gin.TestMode)
}

type stubAuthService struct {
  sessions map[string]*requestdata.RequestData
}

func (s *stubAuthService) RegisterUser(ctx context.Context, user *types.User) error { return nil }
func (s *stubAuthService) Login(ctx context.Context, email, password string) (string, string, error) {
  return "", "", nil
}
func (s *stubAuthService) Refresh(ctx context.Context) (string, string, error) { return "", "", nil }
func (s *stubAuthService) Logout(ctx context.Context) error                      { return nil }
func (s *stubAuthService) GetAccessTTL() time.Duration                           { return time.Minute }

func (s *stubAuthService) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
  rd, ok := s.sessions[token]
  if !ok {
    return ctx, services.ErrUnauthorized
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func newAuthRouter() *gin.Engine {
  am := NewAuthMiddleware(logger.NewNop(), &stubAuthService{sessions: map[string]*requestdata.RequestData{
    "passenger-token": {UserID: uuid.New(), Role: "passenger"},
    "admin-token":     {UserID: uuid.New(), Role: "admin"},
  }})
  r := gin.New()
  r.GET("/me", am.RequireAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
  r.GET("/ws", am.RequireWebsocketAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
  r.GET("/admin", am.RequireAuth(), am.RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
  return r
}

func TestRequireAuth(t *testing.T) {
  r := newAuthRouter()
  cases := []struct {
    name    string
    path    string
    header  string
    want    int
  }{
    {"no token", "/me", "", http.StatusUnauthorized},
    {"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
    {"bearer token", "/me", "Bearer passenger-token", http.StatusNoContent},
    {"lowercase scheme", "/me", "bearer passenger-token", http.StatusNoContent},
    {"query token on api route", "/me?token=passenger-token", "", http.StatusUnauthorized},
    {"query token on websocket", "/ws?token=passenger-token", "", http.StatusNoContent},
    {"bearer on websocket", "/ws", "Bearer passenger-token", http.StatusNoContent},
    {"bad query token on websocket", "/ws?token=nope", "", http.StatusUnauthorized},
    {"admin route as passenger", "/admin", "Bearer passenger-token", http.StatusForbidden},
    {"admin route as admin", "/admin", "Bearer admin-token", http.StatusNoContent},
  }
  for _, tc := range cases {
    t.Run(tc.name, func(t *testing.T) {
      req := httptest.NewRequest(http.MethodGet, tc.path, nil)
      if tc.header != "" {
        req.Header.Set("Authorization", tc.header)
      }
      w := httptest.NewRecorder()
      r.ServeHTTP(w, req)
      if w.Code != tc.want {
        t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
      }
      if w.Code >= 400 {
        var body map[string]interface{}
        if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["success"] != false {
          t.Fatalf("error body not in the expected shape: %s", w.Body.String())
        }
      }
    })
  }
}

type memIdempotencyStore struct {
  mu      sync.Mutex
  data    map[string]string
  claims  []time.Duration
  failGet bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
  return &memIdempotencyStore{data: map[string]string{}}
}

func (m *memIdempotencyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  m.claims = append(m.claims, ttl)
  if _, ok := m.data[key]; ok {
    return false, nil
  }
  m.data[key] = value
  return true, nil
}

func (m *memIdempotencyStore) Get(ctx context.Context, key string) (string, bool, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.failGet {
    return "", false, errors.New("redis down")
  }
  v, ok := m.data[key]
  return v, ok, nil
}

func (m *memIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  m.data[key] = value
  return nil
}

func (m *memIdempotencyStore) Del(ctx context.Context, key string) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  delete(m.data, key)
  return nil
}

func newIdempotentRouter(store IdempotencyStore, status *int, calls *int) *gin.Engine {
  r := gin.New()
  userID := uuid.New()
  r.Use(func(c *gin.Context) {
    c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{UserID: userID}))
  })
  handler := func(c *gin.Context) {
    *calls++
    c.JSON(*status, gin.H{"success": *status < 400, "call": *calls})
  }
  idem := Idempotency(store, logger.NewNop(), ProcessingTTLFor(10*time.Second))
  r.POST("/complete", idem, handler)
  r.POST("/verify", idem, handler)
  return r
}

func post(r *gin.Engine, key string) *httptest.ResponseRecorder {
  return postTo(r, "/complete", key)
}

func postTo(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
  req := httptest.NewRequest(http.MethodPost, path, nil)
  if key != "" {
    req.Header.Set(IdempotencyHeader, key)
  }
  w := httptest.NewRecorder()
  r.ServeHTTP(w, req)
  return w
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
  store := newMemIdempotencyStore()
  status, calls := http.StatusOK, 0
  r := newIdempotentRouter(store, &status, &calls)

  first := post(r, "abc")
  second := post(r, "abc")
  if calls != 1 {
    t.Fatalf("handler ran %d times", calls)
  }
  if second.Code != first.Code || second.Body.String() != first.Body.String() {
    t.Fatalf("replay differs: %d %s vs %d %s", second.Code, second.Body, first.Code, first.Body)
  }
  if second.Header().Get("X-Idempotency-Replayed") != "true" {
    t.Fatalf("replay header missing")
  }

  post(r, "other")
  post(r, "")
  if calls != 3 {
    t.Fatalf("distinct or missing keys should run the handler, calls = %d", calls)
  }
}

func TestIdempotencyReplaysClientErrors(t *testing.T) {
  store := newMemIdempotencyStore()
  status, calls := http.StatusNotFound, 0
  r := newIdempotentRouter(store, &status, &calls)
  post(r, "k")
  w := post(r, "k")
  if calls != 1 || w.Code != http.StatusNotFound {
    t.Fatalf("expected replayed 404 without a second run, got %d after %d calls", w.Code, calls)
  }
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
  store := newMemIdempotencyStore()
  status, calls := http.StatusInternalServerError, 0
  r := newIdempotentRouter(store, &status, &calls)
  post(r, "k")
  status = http.StatusOK
  w := post(r, "k")
  if calls != 2 || w.Code != http.StatusOK {
    t.Fatalf("retry after 5xx should run again, calls = %d status = %d", calls, w.Code)
  }
}

func TestIdempotencyInProgress(t *testing.T) {
  store := newMemIdempotencyStore()
  status, calls := http.StatusOK, 0
  r := newIdempotentRouter(store, &status, &calls)
  w := post(r, "k")
  if w.Code != http.StatusOK {
    t.Fatalf("first request: %d", w.Code)
  }
  // Pretend another instance is still working on the key.
  for k := range store.data {
    store.data[k] = processingMarker
  }
  w = post(r, "k")
  if w.Code != http.StatusConflict || calls != 1 {
    t.Fatalf("expected 409 while processing, got %d after %d calls", w.Code, calls)
  }
}

func TestIdempotencyPassThrough(t *testing.T) {
  status, calls := http.StatusOK, 0
  r := newIdempotentRouter(nil, &status, &calls)
  post(r, "k")
  post(r, "k")
  if calls != 2 {
    t.Fatalf("nil store should pass through, calls = %d", calls)
  }

  store := newMemIdempotencyStore()
  store.failGet = true
  calls = 0
  r = newIdempotentRouter(store, &status, &calls)
  post(r, "k")
  post(r, "k")
  if calls != 2 {
    t.Fatalf("store failure should pass through, calls = %d", calls)
  }
}

func TestIdempotencyKeysAreScopedToRoute(t *testing.T) {
  store := newMemIdempotencyStore()
  status, calls := http.StatusOK, 0
  r := newIdempotentRouter(store, &status, &calls)

  first := postTo(r, "/verify", "shared")
  second := postTo(r, "/complete", "shared")
  if calls != 2 {
    t.Fatalf("same key on another route should run its handler, calls = %d", calls)
  }
  if second.Header().Get("X-Idempotency-Replayed") != "" {
    t.Fatalf("complete replayed the verify response: %s", second.Body)
  }
  if first.Body.String() == second.Body.String() {
    t.Fatalf("bodies should differ per route, both %s", first.Body)
  }

  postTo(r, "/verify", "shared")
  if calls != 2 {
    t.Fatalf("same key on the same route should replay, calls = %d", calls)
  }
}

func TestIdempotencyClaimOutlivesNotificationTimeout(t *testing.T) {
  tests := []struct {
    name       string
    downstream time.Duration
  }{
    {"default gateway timeout", 10 * time.Second},
    {"slow provider", 45 * time.Second},
    {"unset", 0},
  }
  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      if got := ProcessingTTLFor(tt.downstream); got <= tt.downstream {
        t.Fatalf("ProcessingTTLFor(%s) = %s, want longer", tt.downstream, got)
      }
    })
  }

  store := newMemIdempotencyStore()
  status, calls := http.StatusOK, 0
  r := newIdempotentRouter(store, &status, &calls)
  post(r, "k")
  if len(store.claims) != 1 || store.claims[0] <= 10*time.Second {
    t.Fatalf("claim ttl = %v, want longer than the 10s notification timeout", store.claims)
  }

  // A non-positive ttl still yields a usable claim.
  store = newMemIdempotencyStore()
  r = gin.New()
  r.POST("/x", Idempotency(store, logger.NewNop(), 0), func(c *gin.Context) { c.Status(http.StatusNoContent) })
  postTo(r, "/x", "k")
  if len(store.claims) != 1 || store.claims[0] <= 0 {
    t.Fatalf("claim ttl = %v, want positive default", store.claims)
  }
}
