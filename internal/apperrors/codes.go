// Package apperrors provides structured governance errors with stable codes.
package apperrors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Client-correctable input problems.
	CodeValidation Code = "VALIDATION_FAILED"

	// Policy binding could not be resolved. Hard stop.
	CodeScopeUnitMissing   Code = "SCOPE_UNIT_MISSING"
	CodeScopePolicyMissing Code = "SCOPE_POLICY_MISSING"

	CodeNotFound         Code = "NOT_FOUND"
	CodeUpstreamDegraded Code = "UPSTREAM_DEGRADED"
	CodeAuditWriteFailed Code = "AUDIT_WRITE_FAILED"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInternal         Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeScopeUnitMissing, CodeScopePolicyMissing:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUpstreamDegraded:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
