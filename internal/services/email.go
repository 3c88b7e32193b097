package services

import (
  "context"
  "fmt"

  "github.com/sendgrid/sendgrid-go"
  "github.com/sendgrid/sendgrid-go/helpers/mail"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

type EmailType string

const (
  EmailTypeTransfer   EmailType = "transfer"
  EmailTypeSupport    EmailType = "support"
)

type EmailService interface {
  SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string, emailType EmailType) error
}

type emailService struct {
  log                         *logger.Logger
  client                      *sendgrid.Client
  fromSupportEmail            string
  fromTransferEmail           string
}

func NewEmailService(log *logger.Logger) (EmailService, error) {
  serviceLog := log.With("service", "EmailService")
  apiKey := utils.GetEnv("SENDGRID_API_KEY", "", serviceLog)
  if apiKey == "" {
    return nil, fmt.Errorf("Missing SENDGRID_API_KEY environment variable")
  }
  fromSupport := utils.GetEnv("SENDGRID_SUPPORT_EMAIL", "support@trackside.app", serviceLog)
  fromTransfer := utils.GetEnv("SENDGRID_TRANSFER_EMAIL", "transfers@trackside.app", serviceLog)

  return &emailService{
    log:               serviceLog,
    client:            sendgrid.NewSendClient(apiKey),
    fromSupportEmail:  fromSupport,
    fromTransferEmail: fromTransfer,
  }, nil
}

func (es *emailService) SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string, emailType EmailType) error {
  fromName := "Trackside"
  fromEmail := es.fromSupportEmail
  switch emailType {
  case EmailTypeTransfer:
    fromName = "Trackside Transfers"
    fromEmail = es.fromTransferEmail
  case EmailTypeSupport:
    fromName = "Trackside Support"
  }
  from := mail.NewEmail(fromName, fromEmail)
  to := mail.NewEmail("", toEmail)
  message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
  response, err := es.client.SendWithContext(ctx, message)
  if err != nil {
    es.log.Warn("Sendgrid email send failed", "error", err)
    return err
  }
  if response.StatusCode >= 300 {
    es.log.Warn("Sendgrid rejected email", "statusCode", response.StatusCode, "body", response.Body)
    return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
  }
  es.log.Info("Email sent", "to", toEmail, "statusCode", response.StatusCode)
  return nil
}
