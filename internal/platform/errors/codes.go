// Package errors provides structured error handling for the auth core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// User record errors
	CodeUserEmptyID           Code = "USER_EMPTY_ID"
	CodeUserInvalidEmail      Code = "USER_INVALID_EMAIL"
	CodeUserInvalidRoles      Code = "USER_INVALID_ROLES"
	CodeUserDuplicateIdentity Code = "USER_DUPLICATE_IDENTITY"

	// Provider identity errors
	CodeIdentityEmptyProvider Code = "IDENTITY_EMPTY_PROVIDER"
	CodeIdentityEmptySubject  Code = "IDENTITY_EMPTY_SUBJECT"
	CodeIdentityCorrupted     Code = "IDENTITY_CORRUPTED"

	// Conflict errors
	CodeEmailTaken    Code = "EMAIL_TAKEN"
	CodeIdentityTaken Code = "IDENTITY_TAKEN"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// Session errors
	CodeSessionBindFailed Code = "SESSION_BIND_FAILED"

	// Credential errors
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"

	// Verification token errors
	CodeVerifyTokenInvalid Code = "VERIFY_TOKEN_INVALID"
	CodeVerifyTokenExpired Code = "VERIFY_TOKEN_EXPIRED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeUserEmptyID,
		CodeUserInvalidEmail,
		CodeUserInvalidRoles,
		CodeUserDuplicateIdentity,
		CodeIdentityEmptyProvider,
		CodeIdentityEmptySubject,
		CodeVerifyTokenInvalid:
		return http.StatusBadRequest

	// Gone - expired single-use artifacts
	case CodeVerifyTokenExpired:
		return http.StatusGone

	// Unauthorized - credential checks
	case CodeInvalidCredential:
		return http.StatusUnauthorized

	// Conflict - unique resource constraint
	case CodeEmailTaken,
		CodeIdentityTaken:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Unavailable - transient store failures, caller decides retry
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
