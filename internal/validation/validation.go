// Package validation provides input validation helpers for the disbursement API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 10000

var (
	// routingCodeRegex validates IFSC-style routing codes:
	// four bank letters, a zero, six branch alphanumerics.
	routingCodeRegex = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	// accountNumberRegex validates beneficiary account numbers (9-18 digits).
	accountNumberRegex = regexp.MustCompile(`^[0-9]{9,18}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidRoutingCode checks if a string is a well-formed routing code.
func IsValidRoutingCode(code string) bool {
	return routingCodeRegex.MatchString(code)
}

// IsValidAccountNumber checks if a string is a well-formed account number.
func IsValidAccountNumber(acct string) bool {
	return accountNumberRegex.MatchString(acct)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// SanitizeRoutingCode normalizes a routing code to canonical uppercase form.
func SanitizeRoutingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validate collects the non-nil results of field checks.
func Validate(checks ...*ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, c := range checks {
		if c != nil {
			errs = append(errs, *c)
		}
	}
	return errs
}

// ValidRoutingCode returns a field error unless code is well-formed.
func ValidRoutingCode(field, code string) *ValidationError {
	if !IsValidRoutingCode(SanitizeRoutingCode(code)) {
		return &ValidationError{Field: field, Message: "must be a valid routing code (e.g. HDFC0001234)"}
	}
	return nil
}

// ValidAccountNumber returns a field error unless acct is well-formed.
func ValidAccountNumber(field, acct string) *ValidationError {
	if !IsValidAccountNumber(strings.TrimSpace(acct)) {
		return &ValidationError{Field: field, Message: "must be 9-18 digits"}
	}
	return nil
}

// ValidAmount returns a field error unless amount is a positive value.
func ValidAmount(field string, amount float64) *ValidationError {
	if amount <= 0 {
		return &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

// Required returns a field error when value is blank.
func Required(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}
