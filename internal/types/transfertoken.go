package types

import (
  "time"

  "github.com/google/uuid"
)

type TransferToken struct {
  ID                  uuid.UUID                 `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
  Token               string                    `gorm:"uniqueIndex;not null;column:token"`
  TicketID            uuid.UUID                 `gorm:"type:uuid;index;not null"`
  FromUserID          uuid.UUID                 `gorm:"type:uuid;not null"`
  ToEmail             string                    `gorm:"column:to_email"`
  OneTimeCodeID       *uuid.UUID                `gorm:"type:uuid;index"`

  Used                bool                      `gorm:"not null;default:false"`
  UsedAt              *time.Time
  UsedByUserID        *uuid.UUID                `gorm:"type:uuid"`

  CreatedAt           time.Time                 `gorm:"not null;default:now();index"`
  UpdatedAt           time.Time                 `gorm:"not null;default:now()"`
}

func (TransferToken) TableName() string {
  return "transfer_token"
}

func (tt *TransferToken) ExpiresAt() time.Time {
  return tt.CreatedAt.Add(TransferCredentialTTL)
}

func (tt *TransferToken) IsExpired(now time.Time) bool {
  return !now.Before(tt.ExpiresAt())
}
