package types

import (
  "time"

  "gorm.io/gorm"
  "github.com/google/uuid"
)

type UserRole string

const (
  UserRolePassenger     UserRole = "passenger"
  UserRoleAdmin         UserRole = "admin"
)

type User struct {
  ID                  uuid.UUID                 `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  Role                UserRole                  `gorm:"type:varchar(20);not null;default:'passenger';column:role" json:"role"`

  Email               string                    `gorm:"uniqueIndex;not null;column:email" json:"email"`
  PhoneNumber         *string                   `gorm:"column:phone_number" json:"phoneNumber,omitempty"`
  Password            string                    `gorm:"not null;column:password" json:"-"`
  FirstName           string                    `gorm:"not null;column:first_name" json:"firstName"`
  LastName            string                    `gorm:"not null;column:last_name" json:"lastName"`

  NumBookings         int                       `gorm:"not null;default:0" json:"numBookings"`
  TotalTicketsBought  int                       `gorm:"not null;default:0" json:"totalTicketsBought"`
  LastBookingDate     *time.Time                `json:"lastBookingDate,omitempty"`
  IsFlaggedForFraud   bool                      `gorm:"not null;default:false" json:"isFlaggedForFraud"`
  IsSuspended         bool                      `gorm:"not null;default:false" json:"isSuspended"`

  CreatedAt           time.Time                 `gorm:"not null;default:now()" json:"createdAt"`
  UpdatedAt           time.Time                 `gorm:"not null;default:now()" json:"updatedAt"`
  DeletedAt           gorm.DeletedAt            `gorm:"index" json:"-"`
}

func (User) TableName() string {
  return "user"
}

func (u *User) IsAdmin() bool {
  return u.Role == UserRoleAdmin
}

func (u *User) FullName() string {
  if u.LastName == "" {
    return u.FirstName
  }
  return u.FirstName + " " + u.LastName
}
