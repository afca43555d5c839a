// Package faults defines the error taxonomy shared by the disbursement engine.
//
// Four caller-visible classes plus a concurrency conflict:
//   - ValidationError: malformed or missing input, never retried
//   - NotFoundError: missing claim/entry/batch, never retried
//   - BusinessRuleError: precondition holds no longer (e.g. empty batch)
//   - ExternalError: upstream rail/gateway failure, split retryable/terminal
//   - ConflictError: lost-update guard on versioned entities
package faults

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for a field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string // "claim", "queue entry", "batch", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// BusinessRuleError reports a violated domain precondition.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// Rule builds a BusinessRuleError.
func Rule(rule, message string) error {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// ExternalError reports a failure from the payment rail or another upstream.
type ExternalError struct {
	Service   string // "rail", "gateway", "verifier"
	Code      string // upstream error code if any
	Status    int    // HTTP status if any
	Retryable bool
	Err       error
}

func (e *ExternalError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failure (code=%s status=%d): %v", e.Service, kind, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure (code=%s status=%d)", e.Service, kind, e.Code, e.Status)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// External builds an ExternalError.
func External(service, code string, status int, retryable bool, err error) error {
	return &ExternalError{Service: service, Code: code, Status: status, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is an ExternalError marked retryable.
// Everything outside the external class is non-retryable by definition.
func IsRetryable(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee) && ee.Retryable
}

// ConflictError reports a lost optimistic-concurrency race on a versioned
// entity. Callers should re-read and retry the mutation.
type ConflictError struct {
	Kind    string
	ID      string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s version %d is stale", e.Kind, e.ID, e.Version)
}

// Conflict builds a ConflictError.
func Conflict(kind, id string, version int64) error {
	return &ConflictError{Kind: kind, ID: id, Version: version}
}
