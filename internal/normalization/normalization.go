package normalization

import (
  "strings"
)

// ParseInputString trims surrounding whitespace. Case is preserved.
func ParseInputString(s string) string {
  return strings.TrimSpace(s)
}

func ParseInputStringPtr(s *string) *string {
  if s == nil {
    return nil
  }
  out := ParseInputString(*s)
  return &out
}

// ParseEmail trims and lower-cases an address so lookups are case-insensitive.
func ParseEmail(s string) string {
  return strings.ToLower(strings.TrimSpace(s))
}
