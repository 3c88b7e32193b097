package handlers

import (
  "bytes"
  "context"
  "encoding/json"
  "net/http"
  "net/http/httptest"
  "testing"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
  "github.com/trackside-org/trackside-backend/internal/types"
)

func init() {
  gin.SetMode(gin.TestMode)
}

type stubTransferService struct {
  requestRes  *services.RequestTransferResult
  verifyRes   *services.VerifyOtpResult
  ticket      *types.Ticket
  err         error

  lastRequest   services.RequestTransferInput
  lastVerify    services.VerifyOtpInput
  lastComplete  services.CompleteTransferInput
}

func (s *stubTransferService) RequestTransfer(ctx context.Context, in services.RequestTransferInput) (*services.RequestTransferResult, error) {
  s.lastRequest = in
  return s.requestRes, s.err
}

func (s *stubTransferService) VerifyOtp(ctx context.Context, in services.VerifyOtpInput) (*services.VerifyOtpResult, error) {
  s.lastVerify = in
  return s.verifyRes, s.err
}

func (s *stubTransferService) CompleteTransfer(ctx context.Context, in services.CompleteTransferInput) (*types.Ticket, error) {
  s.lastComplete = in
  return s.ticket, s.err
}

func (s *stubTransferService) ValidateToken(ctx context.Context, token string) (*types.Ticket, error) {
  return s.ticket, s.err
}

func (s *stubTransferService) ResendOtp(ctx context.Context, in services.ResendOtpInput) (*services.RequestTransferResult, error) {
  return s.requestRes, s.err
}

func (s *stubTransferService) ResendTransferLink(ctx context.Context, token string, requesterID uuid.UUID) (*services.VerifyOtpResult, error) {
  return s.verifyRes, s.err
}

var callerID = uuid.New()

func withCaller(c *gin.Context) {
  ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{UserID: callerID, Role: "passenger"})
  c.Request = c.Request.WithContext(ctx)
}

func newTransferRouter(svc services.TransferService) *gin.Engine {
  th := NewTransferHandler(svc)
  r := gin.New()
  r.GET("/api/transfer/validate/:token", th.ValidateToken)
  api := r.Group("/api", withCaller)
  api.POST("/transfer/generate", th.RequestTransfer)
  api.POST("/transfer/verify", th.VerifyOtp)
  api.POST("/transfer/resend-otp", th.ResendOtp)
  api.POST("/transfer/resend-link", th.ResendTransferLink)
  api.POST("/transfer/complete/:token", th.CompleteTransfer)
  return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
  var buf bytes.Buffer
  if body != nil {
    _ = json.NewEncoder(&buf).Encode(body)
  }
  req := httptest.NewRequest(method, path, &buf)
  req.Header.Set("Content-Type", "application/json")
  w := httptest.NewRecorder()
  r.ServeHTTP(w, req)
  var out map[string]interface{}
  _ = json.Unmarshal(w.Body.Bytes(), &out)
  return w, out
}

func TestRequestTransferHandler(t *testing.T) {
  ticketID := uuid.New()
  svc := &stubTransferService{requestRes: &services.RequestTransferResult{ExpiresIn: 1800, ExpiresAt: time.Now()}}
  r := newTransferRouter(svc)

  w, body := doJSON(r, http.MethodPost, "/api/transfer/generate", gin.H{
    "ticketId":       ticketID.String(),
    "recipientEmail": "grace@example.com",
    "ticketDetails":  gin.H{"from": "Leeds"},
  })
  if w.Code != http.StatusOK || body["success"] != true || body["expiresIn"] != float64(1800) {
    t.Fatalf("unexpected response %d %v", w.Code, body)
  }
  if svc.lastRequest.SenderID != callerID || svc.lastRequest.TicketID != ticketID {
    t.Fatalf("service called with %+v", svc.lastRequest)
  }
}

func TestTransferHandlerErrorMapping(t *testing.T) {
  ticketID := uuid.New().String()
  cases := []struct {
    name    string
    err     error
    status  int
    code    string
  }{
    {"not owner", services.ErrNotOwner, http.StatusForbidden, "not_owner"},
    {"ticket missing", services.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
    {"recipient missing", services.ErrRecipientNotFound, http.StatusNotFound, "recipient_not_found"},
    {"bad recipient", services.ErrInvalidRecipient, http.StatusBadRequest, "invalid_recipient"},
    {"limit", services.ErrTransferLimitReached, http.StatusBadRequest, "transfer_limit_reached"},
    {"inactive", services.ErrTicketNotActive, http.StatusBadRequest, "ticket_not_active"},
    {"delivery", services.ErrNotificationDeliveryFailed.Wrap(context.DeadlineExceeded), http.StatusInternalServerError, "notification_delivery_failed"},
  }
  for _, tc := range cases {
    t.Run(tc.name, func(t *testing.T) {
      r := newTransferRouter(&stubTransferService{err: tc.err})
      w, body := doJSON(r, http.MethodPost, "/api/transfer/generate", gin.H{"ticketId": ticketID, "recipientEmail": "grace@example.com"})
      if w.Code != tc.status || body["code"] != tc.code || body["success"] != false {
        t.Fatalf("got %d %v, want %d %s", w.Code, body, tc.status, tc.code)
      }
    })
  }
}

func TestRequestTransferHandlerValidation(t *testing.T) {
  r := newTransferRouter(&stubTransferService{})
  w, body := doJSON(r, http.MethodPost, "/api/transfer/generate", gin.H{"ticketId": uuid.New().String()})
  if w.Code != http.StatusBadRequest || body["code"] != "invalid_input" {
    t.Fatalf("missing email: %d %v", w.Code, body)
  }
  w, _ = doJSON(r, http.MethodPost, "/api/transfer/generate", gin.H{"ticketId": "nope", "recipientEmail": "grace@example.com"})
  if w.Code != http.StatusNotFound {
    t.Fatalf("malformed ticket id: %d", w.Code)
  }
}

func TestRequestTransferDeliveryFailure(t *testing.T) {
  svc := &stubTransferService{
    requestRes: &services.RequestTransferResult{ExpiresIn: 1800},
    err:        services.ErrNotificationDeliveryFailed.Wrap(context.DeadlineExceeded),
  }
  r := newTransferRouter(svc)
  w, body := doJSON(r, http.MethodPost, "/api/transfer/generate", gin.H{"ticketId": uuid.New().String(), "recipientEmail": "grace@example.com"})
  if w.Code != http.StatusInternalServerError {
    t.Fatalf("status = %d", w.Code)
  }
  if body["deliveryFailed"] != true || body["expiresIn"] != float64(1800) {
    t.Fatalf("delivery failure body = %v", body)
  }
}

func TestVerifyOtpHandler(t *testing.T) {
  ticketID := uuid.New()
  svc := &stubTransferService{verifyRes: &services.VerifyOtpResult{
    Token:        "abc",
    TransferLink: "http://localhost:5173/receive/abc",
    ExpiresIn:    1800,
  }}
  r := newTransferRouter(svc)

  w, body := doJSON(r, http.MethodPost, "/api/transfer/verify", gin.H{"email": "grace@example.com", "otp": "123456", "ticketId": ticketID.String()})
  if w.Code != http.StatusOK || body["token"] != "abc" || body["transferLink"] != "http://localhost:5173/receive/abc" {
    t.Fatalf("unexpected response %d %v", w.Code, body)
  }
  if svc.lastVerify.Code != "123456" || svc.lastVerify.TicketID != ticketID {
    t.Fatalf("service called with %+v", svc.lastVerify)
  }

  w, body = doJSON(r, http.MethodPost, "/api/transfer/verify", gin.H{"email": "grace@example.com", "ticketId": ticketID.String()})
  if w.Code != http.StatusBadRequest {
    t.Fatalf("missing otp: %d %v", w.Code, body)
  }

  svc.verifyRes, svc.err = nil, services.ErrOtpMismatch
  w, body = doJSON(r, http.MethodPost, "/api/transfer/verify", gin.H{"email": "grace@example.com", "otp": "000000", "ticketId": ticketID.String()})
  if w.Code != http.StatusBadRequest || body["code"] != "otp_mismatch" {
    t.Fatalf("mismatch: %d %v", w.Code, body)
  }
}

func TestCompleteAndValidateHandlers(t *testing.T) {
  ticket := &types.Ticket{ID: uuid.New(), TicketNumber: "TKT-1", Status: types.TicketStatusTransferred}
  svc := &stubTransferService{ticket: ticket}
  r := newTransferRouter(svc)

  w, body := doJSON(r, http.MethodPost, "/api/transfer/complete/tok123", gin.H{"receiverName": "Grace Hopper", "receiverIdNumber": "P-9"})
  if w.Code != http.StatusOK || body["success"] != true || body["ticket"] == nil {
    t.Fatalf("complete: %d %v", w.Code, body)
  }
  if svc.lastComplete.Token != "tok123" || svc.lastComplete.ClaimantID != callerID || svc.lastComplete.ReceiverName != "Grace Hopper" {
    t.Fatalf("service called with %+v", svc.lastComplete)
  }

  w, _ = doJSON(r, http.MethodGet, "/api/transfer/validate/tok123", nil)
  if w.Code != http.StatusOK {
    t.Fatalf("validate: %d", w.Code)
  }

  svc.ticket, svc.err = nil, services.ErrTokenNotFound
  w, body = doJSON(r, http.MethodPost, "/api/transfer/complete/tok123", gin.H{"receiverName": "Grace Hopper"})
  if w.Code != http.StatusNotFound || body["code"] != "token_not_found" {
    t.Fatalf("replay: %d %v", w.Code, body)
  }
  w, _ = doJSON(r, http.MethodGet, "/api/transfer/validate/tok123", nil)
  if w.Code != http.StatusNotFound {
    t.Fatalf("validate used token: %d", w.Code)
  }
}

type stubTicketService struct {
  ticket  *types.Ticket
  err     error
  gotID   uuid.UUID
}

func (s *stubTicketService) IssueTicket(ctx context.Context, in services.IssueTicketInput) (*types.Ticket, error) {
  return s.ticket, s.err
}
func (s *stubTicketService) ListMyTickets(ctx context.Context) ([]*types.Ticket, error) {
  if s.ticket == nil {
    return []*types.Ticket{}, s.err
  }
  return []*types.Ticket{s.ticket}, s.err
}
func (s *stubTicketService) GetTicket(ctx context.Context, id uuid.UUID) (*types.Ticket, error) {
  s.gotID = id
  return s.ticket, s.err
}
func (s *stubTicketService) CancelTicket(ctx context.Context, id uuid.UUID) (*types.Ticket, error) {
  s.gotID = id
  return s.ticket, s.err
}
func (s *stubTicketService) MarkTicketUsed(ctx context.Context, id uuid.UUID) (*types.Ticket, error) {
  s.gotID = id
  return s.ticket, s.err
}

func TestTicketHandlers(t *testing.T) {
  ticket := &types.Ticket{ID: uuid.New(), TicketNumber: "TKT-1", Status: types.TicketStatusActive}
  svc := &stubTicketService{ticket: ticket}
  th := NewTicketHandler(svc)
  r := gin.New()
  api := r.Group("/api", withCaller)
  api.GET("/tickets", th.ListMyTickets)
  api.GET("/tickets/:id", th.GetTicket)
  api.POST("/tickets", th.IssueTicket)
  api.POST("/tickets/:id/cancel", th.CancelTicket)

  w, body := doJSON(r, http.MethodGet, "/api/tickets", nil)
  if w.Code != http.StatusOK || len(body["tickets"].([]interface{})) != 1 {
    t.Fatalf("list: %d %v", w.Code, body)
  }
  w, _ = doJSON(r, http.MethodGet, "/api/tickets/"+ticket.ID.String(), nil)
  if w.Code != http.StatusOK || svc.gotID != ticket.ID {
    t.Fatalf("get: %d", w.Code)
  }
  w, _ = doJSON(r, http.MethodGet, "/api/tickets/not-a-uuid", nil)
  if w.Code != http.StatusNotFound {
    t.Fatalf("malformed id: %d", w.Code)
  }
  w, _ = doJSON(r, http.MethodPost, "/api/tickets", gin.H{"ownerEmail": "ada@example.com"})
  if w.Code != http.StatusCreated {
    t.Fatalf("issue: %d", w.Code)
  }
  svc.err = services.ErrTicketNotActive
  w, body = doJSON(r, http.MethodPost, "/api/tickets/"+ticket.ID.String()+"/cancel", nil)
  if w.Code != http.StatusBadRequest || body["code"] != "ticket_not_active" {
    t.Fatalf("cancel inactive: %d %v", w.Code, body)
  }
}

func TestHealthz(t *testing.T) {
  r := gin.New()
  r.GET("/healthz", Healthz)
  w, body := doJSON(r, http.MethodGet, "/healthz", nil)
  if w.Code != http.StatusOK || body["status"] != "ok" {
    t.Fatalf("healthz: %d %v", w.Code, body)
  }
}
