package handlers

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"

  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
  "github.com/trackside-org/trackside-backend/internal/types"
)

type AuthHandler struct {
  authService     services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
  return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
  var req struct {
    Email           string              `json:"email"`
    PhoneNumber     string              `json:"phone_number,omitempty"`
    FirstName       string              `json:"first_name"`
    LastName        string              `json:"last_name"`
    Password        string              `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  user := types.User{
    Email:        req.Email,
    FirstName:    req.FirstName,
    LastName:     req.LastName,
    Password:     req.Password,
  }
  if strings.TrimSpace(req.PhoneNumber) != "" {
    user.PhoneNumber = &req.PhoneNumber
  }
  if err := ah.authService.RegisterUser(c.Request.Context(), &user); err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusCreated, gin.H{"success": true, "user": user})
}

func (ah *AuthHandler) Login(c *gin.Context) {
  var req struct {
    Email           string          `json:"email"`
    Password        string          `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  accessToken, refreshToken, err := ah.authService.Login(c.Request.Context(), req.Email, req.Password)
  if err != nil {
    respondError(c, err)
    return
  }
  ah.respondTokens(c, accessToken, refreshToken)
}

// Refresh is public: the access token may already have expired, so the
// refresh token travels in the body.
func (ah *AuthHandler) Refresh(c *gin.Context) {
  var req struct {
    RefreshToken    string          `json:"refresh_token"`
  }
  _ = c.ShouldBindJSON(&req)
  if req.RefreshToken == "" {
    req.RefreshToken = c.GetHeader("X-Refresh-Token")
  }
  if req.RefreshToken == "" {
    respondError(c, services.ErrUnauthorized.WithMessage("missing refresh token"))
    return
  }
  ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{RefreshToken: req.RefreshToken})
  accessToken, refreshToken, err := ah.authService.Refresh(ctx)
  if err != nil {
    respondError(c, err)
    return
  }
  ah.respondTokens(c, accessToken, refreshToken)
}

func (ah *AuthHandler) Logout(c *gin.Context) {
  if err := ah.authService.Logout(c.Request.Context()); err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out successfully"})
}

func (ah *AuthHandler) respondTokens(c *gin.Context, accessToken, refreshToken string) {
  expiresIn := int(ah.authService.GetAccessTTL().Seconds())
  c.JSON(http.StatusOK, gin.H{
    "success":        true,
    "access_token":   accessToken,
    "refresh_token":  refreshToken,
    "expires_in":     expiresIn,
  })
}
