package faults

import (
	"errors"
	"net/http"
)

// HTTPStatus maps a taxonomy error to an HTTP status code.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		br *BusinessRuleError
		ee *ExternalError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &br):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ee):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable error code for a taxonomy error.
func Code(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		br *BusinessRuleError
		ee *ExternalError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &br):
		return "business_rule"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ee):
		return "external_error"
	default:
		return "internal_error"
	}
}
