package services

import (
  "context"
  "errors"
  "fmt"
  "time"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/templates"
  "github.com/trackside-org/trackside-backend/internal/types"
)

type TransferOtpNotice struct {
  ToEmail     string
  ToPhone     *string
  SenderName  string
  Code        string
  Ticket      *types.Ticket
  ExpiresIn   time.Duration
}

type TransferLinkNotice struct {
  ToEmail     string
  ToPhone     *string
  SenderName  string
  Link        string
  Ticket      *types.Ticket
  ExpiresIn   time.Duration
}

// NotificationGateway delivers transfer credentials to the recipient. It is
// only called after the record it announces has been committed.
type NotificationGateway interface {
  SendTransferOtp(ctx context.Context, notice TransferOtpNotice) error
  SendTransferLink(ctx context.Context, notice TransferLinkNotice) error
}

type notificationGateway struct {
  log           *logger.Logger
  emailService  EmailService
  textService   TextService
  timeout       time.Duration
  logoURL       string
}

// NewNotificationGateway sends email through emailService and, when the
// recipient has a phone on file and textService is set, a short SMS copy.
// Email is the channel of record; SMS failures are only logged.
func NewNotificationGateway(log *logger.Logger, emailService EmailService, textService TextService, timeout time.Duration, logoURL string) NotificationGateway {
  if timeout <= 0 {
    timeout = 10 * time.Second
  }
  return &notificationGateway{
    log:          log.With("service", "NotificationGateway"),
    emailService: emailService,
    textService:  textService,
    timeout:      timeout,
    logoURL:      logoURL,
  }
}

func (ng *notificationGateway) SendTransferOtp(ctx context.Context, notice TransferOtpNotice) error {
  if ng.emailService == nil {
    return errors.New("email channel not configured")
  }
  ctx, cancel := context.WithTimeout(ctx, ng.timeout)
  defer cancel()

  html, err := templates.RenderTransferOtpHTML(templates.TransferOtpEmailData{
    Logo:             ng.logoURL,
    SenderName:       notice.SenderName,
    Code:             notice.Code,
    ExpiresInMinutes: int(notice.ExpiresIn / time.Minute),
    Ticket:           summarize(notice.Ticket),
  })
  if err != nil {
    return fmt.Errorf("render otp email: %w", err)
  }
  plain := fmt.Sprintf("%s wants to transfer ticket %s (%s to %s) to you. Your OTP is %s. It expires in %d minutes.",
    notice.SenderName, notice.Ticket.TicketNumber, notice.Ticket.From, notice.Ticket.To, notice.Code, int(notice.ExpiresIn/time.Minute))

  if err := ng.emailService.SendEmail(ctx, notice.ToEmail, "Your OTP for Ticket Transfer", plain, html, EmailTypeTransfer); err != nil {
    ng.log.Warn("OTP email failed", "ticketID", notice.Ticket.ID, "error", err)
    return err
  }
  ng.sendText(ctx, notice.ToPhone, fmt.Sprintf("Trackside: your ticket transfer code is %s", notice.Code))
  return nil
}

func (ng *notificationGateway) SendTransferLink(ctx context.Context, notice TransferLinkNotice) error {
  if ng.emailService == nil {
    return errors.New("email channel not configured")
  }
  ctx, cancel := context.WithTimeout(ctx, ng.timeout)
  defer cancel()

  html, err := templates.RenderTransferLinkHTML(templates.TransferLinkEmailData{
    Logo:             ng.logoURL,
    SenderName:       notice.SenderName,
    TransferLink:     notice.Link,
    ExpiresInMinutes: int(notice.ExpiresIn / time.Minute),
    Ticket:           summarize(notice.Ticket),
  })
  if err != nil {
    return fmt.Errorf("render link email: %w", err)
  }
  plain := fmt.Sprintf("Claim ticket %s (%s to %s) here: %s", notice.Ticket.TicketNumber, notice.Ticket.From, notice.Ticket.To, notice.Link)

  if err := ng.emailService.SendEmail(ctx, notice.ToEmail, "Claim your transferred ticket", plain, html, EmailTypeTransfer); err != nil {
    ng.log.Warn("Claim link email failed", "ticketID", notice.Ticket.ID, "error", err)
    return err
  }
  ng.sendText(ctx, notice.ToPhone, "Trackside: claim your ticket at "+notice.Link)
  return nil
}

func (ng *notificationGateway) sendText(ctx context.Context, phone *string, body string) {
  if ng.textService == nil || phone == nil || *phone == "" {
    return
  }
  if err := ng.textService.SendText(ctx, *phone, body); err != nil {
    ng.log.Warn("SMS copy failed", "error", err)
  }
}

func summarize(t *types.Ticket) templates.TicketSummary {
  return templates.TicketSummary{
    TicketNumber:  t.TicketNumber,
    From:          t.From,
    To:            t.To,
    TrainName:     t.TrainName,
    Coach:         t.Coach,
    Seat:          t.Seat,
    DepartureTime: t.DepartureTime,
  }
}
