package events

import (
  "context"
  "time"

  "github.com/google/uuid"
)

type Type string

const (
  TransferRequested   Type = "transfer.requested"
  TransferVerified    Type = "transfer.verified"
  TransferCompleted   Type = "transfer.completed"
  TicketIssued        Type = "ticket.issued"
  TicketCancelled     Type = "ticket.cancelled"
  TicketUsed          Type = "ticket.used"
)

// Event is a ticket lifecycle notification. Recipients lists the users whose
// live channels should see it; it is not part of the wire payload.
type Event struct {
  ID              uuid.UUID                 `json:"id"`
  Type            Type                      `json:"type"`
  TicketID        uuid.UUID                 `json:"ticketId"`
  OccurredAt      time.Time                 `json:"occurredAt"`
  Data            map[string]interface{}    `json:"data,omitempty"`
  Recipients      []uuid.UUID               `json:"-"`
}

func New(t Type, ticketID uuid.UUID, recipients ...uuid.UUID) Event {
  return Event{
    ID:         uuid.New(),
    Type:       t,
    TicketID:   ticketID,
    OccurredAt: time.Now().UTC(),
    Data:       map[string]interface{}{},
    Recipients: recipients,
  }
}

type Publisher interface {
  Publish(ctx context.Context, evt Event) error
}

type nopPublisher struct{}

func NewNopPublisher() Publisher {
  return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, Event) error {
  return nil
}
