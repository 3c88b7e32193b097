package handlers

import (
  "github.com/gin-gonic/gin"

  "github.com/trackside-org/trackside-backend/internal/errordata"
  "github.com/trackside-org/trackside-backend/internal/services"
)

// respondError writes the failure shape every endpoint shares. extra keys
// are merged in for partial successes such as failed deliveries.
func respondError(c *gin.Context, err error, extra ...gin.H) {
  body := gin.H{
    "success": false,
    "error":   errordata.PublicMessage(err),
    "code":    errordata.PublicCode(err),
  }
  if errordata.IsKind(err, errordata.KindDelivery) {
    body["deliveryFailed"] = true
  }
  for _, e := range extra {
    for k, v := range e {
      body[k] = v
    }
  }
  c.JSON(errordata.HTTPStatus(err), body)
}

func badRequest(c *gin.Context, msg string) {
  respondError(c, services.ErrInvalidInput.WithMessage(msg))
}
