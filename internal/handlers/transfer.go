package handlers

import (
  "encoding/json"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
)

type TransferHandler struct {
  transferService services.TransferService
}

func NewTransferHandler(transferService services.TransferService) *TransferHandler {
  return &TransferHandler{transferService: transferService}
}

type requestTransferBody struct {
  TicketID        string            `json:"ticketId"`
  RecipientEmail  string            `json:"recipientEmail"`
  // Clients still send a ticket snapshot; the stored ticket is what gets mailed.
  TicketDetails   json.RawMessage   `json:"ticketDetails,omitempty"`
}

func (th *TransferHandler) RequestTransfer(c *gin.Context) {
  var req requestTransferBody
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  if req.RecipientEmail == "" || req.TicketID == "" {
    badRequest(c, "Recipient email and ticket ID are required")
    return
  }
  ticketID, err := uuid.Parse(req.TicketID)
  if err != nil {
    respondError(c, services.ErrTicketNotFound)
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  res, err := th.transferService.RequestTransfer(c.Request.Context(), services.RequestTransferInput{
    TicketID:       ticketID,
    SenderID:       rd.UserID,
    RecipientEmail: req.RecipientEmail,
  })
  if err != nil {
    if res != nil {
      respondError(c, err, gin.H{"expiresIn": res.ExpiresIn})
      return
    }
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "success":   true,
    "message":   "OTP generated and sent successfully",
    "expiresIn": res.ExpiresIn,
  })
}

func (th *TransferHandler) ResendOtp(c *gin.Context) {
  var req requestTransferBody
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  ticketID, err := uuid.Parse(req.TicketID)
  if err != nil {
    respondError(c, services.ErrTicketNotFound)
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  res, err := th.transferService.ResendOtp(c.Request.Context(), services.ResendOtpInput{
    TicketID:       ticketID,
    SenderID:       rd.UserID,
    RecipientEmail: req.RecipientEmail,
  })
  if err != nil {
    if res != nil {
      respondError(c, err, gin.H{"expiresIn": res.ExpiresIn})
      return
    }
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP sent again", "expiresIn": res.ExpiresIn})
}

func (th *TransferHandler) VerifyOtp(c *gin.Context) {
  var req struct {
    Email     string  `json:"email"`
    Otp       string  `json:"otp"`
    TicketID  string  `json:"ticketId"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  if req.Email == "" || req.Otp == "" || req.TicketID == "" {
    badRequest(c, "Email, OTP, and ticket ID are required")
    return
  }
  ticketID, err := uuid.Parse(req.TicketID)
  if err != nil {
    respondError(c, services.ErrOtpNotFound)
    return
  }
  res, err := th.transferService.VerifyOtp(c.Request.Context(), services.VerifyOtpInput{
    Email:    req.Email,
    Code:     req.Otp,
    TicketID: ticketID,
  })
  if err != nil {
    if res != nil {
      respondError(c, err, linkBody(res))
      return
    }
    respondError(c, err)
    return
  }
  body := linkBody(res)
  body["success"] = true
  body["message"] = "OTP verified successfully"
  c.JSON(http.StatusOK, body)
}

func (th *TransferHandler) ResendTransferLink(c *gin.Context) {
  var req struct {
    Token     string  `json:"token"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  res, err := th.transferService.ResendTransferLink(c.Request.Context(), req.Token, rd.UserID)
  if err != nil {
    if res != nil {
      respondError(c, err, linkBody(res))
      return
    }
    respondError(c, err)
    return
  }
  body := linkBody(res)
  body["success"] = true
  c.JSON(http.StatusOK, body)
}

func (th *TransferHandler) CompleteTransfer(c *gin.Context) {
  var req struct {
    ReceiverName      string  `json:"receiverName"`
    ReceiverIDNumber  string  `json:"receiverIdNumber"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  ticket, err := th.transferService.CompleteTransfer(c.Request.Context(), services.CompleteTransferInput{
    Token:            c.Param("token"),
    ClaimantID:       rd.UserID,
    ReceiverName:     req.ReceiverName,
    ReceiverIDNumber: req.ReceiverIDNumber,
  })
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{
    "success": true,
    "ticket":  ticket,
    "message": "Ticket transfer process completed successfully",
  })
}

func (th *TransferHandler) ValidateToken(c *gin.Context) {
  ticket, err := th.transferService.ValidateToken(c.Request.Context(), c.Param("token"))
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func linkBody(res *services.VerifyOtpResult) gin.H {
  return gin.H{
    "token":        res.Token,
    "transferLink": res.TransferLink,
    "expiresIn":    res.ExpiresIn,
  }
}
