package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
)

type TicketStatus string

const (
  TicketStatusActive        TicketStatus = "active"
  TicketStatusUsed          TicketStatus = "used"
  TicketStatusTransferred   TicketStatus = "transferred"
  TicketStatusExpired       TicketStatus = "expired"
  TicketStatusCancelled     TicketStatus = "cancelled"
)

const DefaultTransferLimit = 3

// TicketTransfer is one completed ownership change. Stored inline on the
// ticket so the history and the owner change in the same row update.
type TicketTransfer struct {
  FromUserID          uuid.UUID                 `json:"fromUserId"`
  ToUserID            uuid.UUID                 `json:"toUserId"`
  TransferDate        time.Time                 `json:"transferDate"`
  TransferTokenID     uuid.UUID                 `json:"transferTokenId"`
}

type Ticket struct {
  ID                  uuid.UUID                 `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  TicketNumber        string                    `gorm:"uniqueIndex;not null;column:ticket_number" json:"ticketNumber"`
  UserID              uuid.UUID                 `gorm:"type:uuid;index;not null;column:user_id" json:"userId"`
  BookingID           *uuid.UUID                `gorm:"type:uuid;index" json:"bookingId,omitempty"`
  TrainID             uuid.UUID                 `gorm:"type:uuid;not null" json:"trainId"`

  From                string                    `gorm:"not null;column:from_station" json:"from"`
  To                  string                    `gorm:"not null;column:to_station" json:"to"`
  DepartureTime       time.Time                 `gorm:"not null" json:"departureTime"`
  ArrivalTime         time.Time                 `gorm:"not null;index" json:"arrivalTime"`
  TrainName           string                    `gorm:"not null" json:"trainName"`
  Coach               string                    `gorm:"not null" json:"coach"`
  Seat                string                    `gorm:"not null" json:"seat"`
  Price               float64                   `gorm:"type:numeric(10,2);not null" json:"price"`
  QRCode              string                    `gorm:"not null;column:qr_code" json:"qrCode"`

  PassengerName       string                    `gorm:"not null" json:"passengerName"`
  PassengerID         string                    `gorm:"column:passenger_id" json:"passengerId"`
  Status              TicketStatus              `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
  TransferLimit       int                       `gorm:"not null;default:3" json:"transferLimit"`
  Transfers           datatypes.JSONSlice[TicketTransfer] `gorm:"type:jsonb;not null;default:'[]'" json:"transfers"`

  PassBucketKey       string                    `gorm:"column:pass_bucket_key" json:"-"`
  PassURL             string                    `gorm:"column:pass_url" json:"passURL,omitempty"`

  CreatedAt           time.Time                 `gorm:"not null;default:now()" json:"createdAt"`
  UpdatedAt           time.Time                 `gorm:"not null;default:now()" json:"updatedAt"`
}

func (Ticket) TableName() string {
  return "ticket"
}

func (t *Ticket) IsActive() bool {
  return t.Status == TicketStatusActive
}

func (t *Ticket) TransfersRemaining() int {
  remaining := t.TransferLimit - len(t.Transfers)
  if remaining < 0 {
    return 0
  }
  return remaining
}

func (t *Ticket) HasTransfersRemaining() bool {
  return len(t.Transfers) < t.TransferLimit
}
