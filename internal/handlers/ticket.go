package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/services"
)

type TicketHandler struct {
  ticketService services.TicketService
}

func NewTicketHandler(ticketService services.TicketService) *TicketHandler {
  return &TicketHandler{ticketService: ticketService}
}

func (th *TicketHandler) ListMyTickets(c *gin.Context) {
  tickets, err := th.ticketService.ListMyTickets(c.Request.Context())
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "tickets": tickets})
}

func (th *TicketHandler) GetTicket(c *gin.Context) {
  ticketID, ok := ticketIDParam(c)
  if !ok {
    return
  }
  ticket, err := th.ticketService.GetTicket(c.Request.Context(), ticketID)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func (th *TicketHandler) IssueTicket(c *gin.Context) {
  var req services.IssueTicketInput
  if err := c.ShouldBindJSON(&req); err != nil {
    badRequest(c, "invalid request body")
    return
  }
  ticket, err := th.ticketService.IssueTicket(c.Request.Context(), req)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusCreated, gin.H{"success": true, "ticket": ticket})
}

func (th *TicketHandler) CancelTicket(c *gin.Context) {
  ticketID, ok := ticketIDParam(c)
  if !ok {
    return
  }
  ticket, err := th.ticketService.CancelTicket(c.Request.Context(), ticketID)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func (th *TicketHandler) MarkTicketUsed(c *gin.Context) {
  ticketID, ok := ticketIDParam(c)
  if !ok {
    return
  }
  ticket, err := th.ticketService.MarkTicketUsed(c.Request.Context(), ticketID)
  if err != nil {
    respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

// ticketIDParam answers not found for ids that cannot exist.
func ticketIDParam(c *gin.Context) (uuid.UUID, bool) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    respondError(c, services.ErrTicketNotFound)
    return uuid.Nil, false
  }
  return id, true
}
