package services

import (
  "context"
  "fmt"

  twilio "github.com/twilio/twilio-go"
  openapi "github.com/twilio/twilio-go/rest/api/v2010"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/utils"
)

type TextService interface {
  SendText(ctx context.Context, toNumber string, body string) error
}

type textService struct {
  log         *logger.Logger
  client      *twilio.RestClient
  from        string
}

func NewTextService(log *logger.Logger) (TextService, error) {
  serviceLog := log.With("service", "TextService")
  accountSid := utils.GetEnv("TWILIO_ACCOUNT_SID", "", serviceLog)
  authToken := utils.GetEnv("TWILIO_AUTH_TOKEN", "", serviceLog)
  fromNumber := utils.GetEnv("TWILIO_FROM_NUMBER", "", serviceLog)

  if accountSid == "" || authToken == "" || fromNumber == "" {
    return nil, fmt.Errorf("Missing Twilio env variables: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER")
  }

  client := twilio.NewRestClientWithParams(twilio.ClientParams{
    Username: accountSid,
    Password: authToken,
  })
  return &textService{log: serviceLog, client: client, from: fromNumber}, nil
}

// SendText runs the Twilio call off the caller's goroutine so ctx can bound it;
// the client itself takes no context.
func (ts *textService) SendText(ctx context.Context, toNumber string, body string) error {
  params := &openapi.CreateMessageParams{}
  params.SetTo(toNumber)
  params.SetFrom(ts.from)
  params.SetBody(body)

  type result struct {
    resp *openapi.ApiV2010Message
    err  error
  }
  done := make(chan result, 1)
  go func() {
    resp, err := ts.client.Api.CreateMessage(params)
    done <- result{resp: resp, err: err}
  }()

  select {
  case <-ctx.Done():
    ts.log.Warn("Twilio send abandoned", "toNumber", toNumber, "error", ctx.Err())
    return ctx.Err()
  case r := <-done:
    if r.err != nil {
      ts.log.Warn("Failed to send Text via Twilio", "error", r.err)
      return r.err
    }
    sid, status := "", ""
    if r.resp != nil && r.resp.Sid != nil {
      sid = *r.resp.Sid
    }
    if r.resp != nil && r.resp.Status != nil {
      status = *r.resp.Status
    }
    ts.log.Info("Successfully sent Text via Twilio", "toNumber", toNumber, "sid", sid, "status", status)
    return nil
  }
}
