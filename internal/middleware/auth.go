package middleware

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/errordata"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
)

type AuthMiddleware struct {
  log               *logger.Logger
  authService       services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
  middlewareLogger := log.With("Middleware", "AuthMiddleware")
  return &AuthMiddleware{log: middlewareLogger, authService: authService}
}

// RequireAuth only reads the Authorization header.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
  return am.authenticate(false)
}

// RequireWebsocketAuth also takes a token query parameter, since browsers
// cannot set headers on an upgrade request.
func (am *AuthMiddleware) RequireWebsocketAuth() gin.HandlerFunc {
  return am.authenticate(true)
}

func (am *AuthMiddleware) authenticate(allowQuery bool) gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractToken(c, allowQuery)
    if tokenString == "" {
      abort(c, http.StatusUnauthorized, "missing or invalid token", "unauthorized")
      return
    }
    ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
    if err != nil {
      am.log.Debug("Rejected token", "error", err)
      abort(c, http.StatusUnauthorized, errordata.PublicMessage(err), "unauthorized")
      return
    }
    rd := requestdata.GetRequestData(ctx)
    if rd == nil || rd.UserID == uuid.Nil {
      abort(c, http.StatusForbidden, "forbidden - invalid user id", "forbidden")
      return
    }
    c.Request = c.Request.WithContext(ctx)
    c.Next()
  }
}

// RequireRole must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd := requestdata.GetRequestData(c.Request.Context())
    if rd == nil {
      abort(c, http.StatusForbidden, "request data missing", "forbidden")
      return
    }
    if rd.Role != role {
      am.log.Warn("Insufficient role", "userID", rd.UserID, "role", rd.Role, "required", role)
      abort(c, http.StatusForbidden, "insufficient permissions", "forbidden")
      return
    }
    c.Next()
  }
}

func extractToken(c *gin.Context, allowQuery bool) string {
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return strings.TrimSpace(authHeader[7:])
  }
  if allowQuery {
    return c.Query("token")
  }
  return ""
}

func abort(c *gin.Context, status int, msg, code string) {
  c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}
