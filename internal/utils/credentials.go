package utils

import (
  "crypto/rand"
  "encoding/hex"
  "fmt"
  "math/big"
  "strings"
)

var otpRange = big.NewInt(900000)

// GenerateOtpCode returns a uniformly random six digit code in [100000, 999999].
func GenerateOtpCode() (string, error) {
  n, err := rand.Int(rand.Reader, otpRange)
  if err != nil {
    return "", fmt.Errorf("generate otp: %w", err)
  }
  return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// GenerateTransferToken returns 32 random bytes as 64 lowercase hex characters.
func GenerateTransferToken() (string, error) {
  b := make([]byte, 32)
  if _, err := rand.Read(b); err != nil {
    return "", fmt.Errorf("generate transfer token: %w", err)
  }
  return hex.EncodeToString(b), nil
}

// GenerateTicketNumber returns TKT- followed by eight uppercase hex characters.
func GenerateTicketNumber() (string, error) {
  b := make([]byte, 4)
  if _, err := rand.Read(b); err != nil {
    return "", fmt.Errorf("generate ticket number: %w", err)
  }
  return "TKT-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
