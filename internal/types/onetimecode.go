package types

import (
  "time"

  "github.com/google/uuid"
)

// TransferCredentialTTL bounds both one-time codes and transfer tokens.
const TransferCredentialTTL = 30 * time.Minute

type OneTimeCode struct {
  ID                  uuid.UUID                 `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
  Email               string                    `gorm:"not null;index:idx_one_time_code_lookup,priority:1;column:email"`
  TicketID            uuid.UUID                 `gorm:"type:uuid;not null;index:idx_one_time_code_lookup,priority:2"`
  SenderID            uuid.UUID                 `gorm:"type:uuid;not null"`

  Code                string                    `gorm:"not null;column:code"`
  Attempts            int                       `gorm:"not null;default:0"`
  Used                bool                      `gorm:"not null;default:false;index:idx_one_time_code_lookup,priority:3"`
  UsedAt              *time.Time

  CreatedAt           time.Time                 `gorm:"not null;default:now();index:idx_one_time_code_lookup,priority:4"`
  UpdatedAt           time.Time                 `gorm:"not null;default:now()"`
}

func (OneTimeCode) TableName() string {
  return "one_time_code"
}

func (otc *OneTimeCode) ExpiresAt() time.Time {
  return otc.CreatedAt.Add(TransferCredentialTTL)
}

func (otc *OneTimeCode) IsExpired(now time.Time) bool {
  return !now.Before(otc.ExpiresAt())
}
