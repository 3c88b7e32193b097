package utils

import (
  "context"
  "fmt"
  "regexp"

  "golang.org/x/crypto/bcrypt"

  "github.com/trackside-org/trackside-backend/internal/errordata"
  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/normalization"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/types"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail applies the same loose shape check the clients use.
func IsValidEmail(email string) bool {
  return emailPattern.MatchString(email)
}

func invalid(msg string) error {
  return errordata.Validation("invalid_input", msg)
}

func RegisterInputValidation(ctx context.Context, userRepo repos.UserRepo, log *logger.Logger, user *types.User) error {
  //1) Check if user is empty
  if user == nil {
    log.Warn("User is nil, cannot proceed further. Returning error")
    return invalid("No user given, cannot proceed any further.")
  }

  //2) Check Email
  if user.Email == "" || !IsValidEmail(user.Email) {
    log.Warn("Email is missing or malformed, cannot proceed further. Returning error")
    return invalid("a valid email is required to register.")
  }
  emailExists, err := userRepo.EmailExists(ctx, nil, user.Email)
  if err != nil {
    log.Warn("Failed to check if user email exists, error from UserRepo. Returning an error.", "error", err)
    return fmt.Errorf("Failed checking user email existence: %w", err)
  }
  if emailExists {
    log.Warn("Email is already in use, cannot continue. Returning an error.")
    return errordata.Validation("email_taken", "email is already in use.")
  }

  //3) Check Phone Number
  if user.PhoneNumber != nil && *user.PhoneNumber != "" {
    phoneExists, err := userRepo.PhoneNumberExists(ctx, nil, *user.PhoneNumber)
    if err != nil {
      log.Warn("Failed to check if user phone number exists, error from UserRepo. Returning an error.", "error", err)
      return fmt.Errorf("Failed checking user phone number existence: %w", err)
    }
    if phoneExists {
      log.Warn("Phone Number is already in use, cannot continue. Returning an error.")
      return errordata.Validation("phone_taken", "phone number is already in use.")
    }
  }

  //4) Check Password
  if len(user.Password) < 8 {
    log.Warn("Password too short, cannot proceed further. Returning error")
    return invalid("a password of at least 8 characters is required to register.")
  }

  //5) Check FirstName
  if user.FirstName == "" {
    log.Warn("First Name is empty, cannot proceed further. Returning error")
    return invalid("a first name is required to register.")
  }

  //6) Check LastName
  if user.LastName == "" {
    log.Warn("Last Name is empty, cannot proceed further. Returning error")
    return invalid("a last name is required to register.")
  }
  return nil
}

func LoginInputValidation(log *logger.Logger, email, password string) error {
  if email == "" {
    log.Warn("Email is an empty string, Cannot proceed.")
    return invalid("Email is required.")
  }
  if password == "" {
    log.Warn("Password is an empty string, Cannot proceed.")
    return invalid("Password is required.")
  }
  return nil
}

func HashPassword(log *logger.Logger, user *types.User) error {
  hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
  if err != nil {
    log.Warn("Failure to hash password for user. Returning error", "error", err)
    return fmt.Errorf("Failed to hash password for user: %w", err)
  }
  user.Password = string(hashedPassword)
  return nil
}

func NormalizeUserFields(user *types.User) {
  user.Email = normalization.ParseEmail(user.Email)
  user.PhoneNumber = normalization.ParseInputStringPtr(user.PhoneNumber)
  user.FirstName = normalization.ParseInputString(user.FirstName)
  user.LastName = normalization.ParseInputString(user.LastName)
}
