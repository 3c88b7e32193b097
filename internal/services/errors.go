package services

import (
  "github.com/trackside-org/trackside-backend/internal/errordata"
)

var (
  ErrInvalidInput               = errordata.Validation("invalid_input", "Invalid request")
  ErrInvalidRecipient           = errordata.Validation("invalid_recipient", "Invalid recipient email")
  ErrRecipientNotFound          = errordata.NotFound("recipient_not_found", "Recipient is not a registered user")
  ErrSenderSuspended            = errordata.Forbidden("sender_suspended", "Your account is suspended")

  ErrTicketNotFound             = errordata.NotFound("ticket_not_found", "Ticket not found")
  ErrNotOwner                   = errordata.Forbidden("not_owner", "You do not own this ticket")
  ErrTicketNotActive            = errordata.State("ticket_not_active", "Ticket is not active")
  ErrTransferLimitReached       = errordata.State("transfer_limit_reached", "Transfer limit reached for this ticket")

  ErrOtpNotFound                = errordata.NotFound("otp_not_found", "Invalid or expired OTP")
  ErrOtpMismatch                = errordata.Validation("otp_mismatch", "Invalid OTP")
  ErrOtpAttemptsExceeded        = errordata.State("otp_attempts_exceeded", "Too many incorrect attempts, request a new OTP")
  ErrTokenNotFound              = errordata.NotFound("token_not_found", "Invalid or expired transfer token")

  ErrNotificationDeliveryFailed = errordata.Delivery("notification_delivery_failed", "Failed to deliver notification")

  ErrUserNotFound               = errordata.NotFound("user_not_found", "User not found")
  ErrEmailTaken                 = errordata.Validation("email_taken", "Email already in use")
  ErrPhoneTaken                 = errordata.Validation("phone_taken", "Phone number already in use")
  ErrInvalidCredentials         = errordata.Unauthorized("invalid_credentials", "Invalid email or password")
  ErrUnauthorized               = errordata.Unauthorized("unauthorized", "Not authorized")
)

// asDomain leaves domain errors alone and folds anything else into an
// internal error.
func asDomain(err error) error {
  if err == nil {
    return nil
  }
  if errordata.From(err) != nil {
    return err
  }
  return errordata.Internal(err)
}
