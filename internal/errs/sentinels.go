// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across workflow/service/repo layers.
var (
	// ErrNotFound indicates the requested document, field or signer does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidGeometry indicates a placement that would put part of a field
	// outside page bounds.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidAssignment indicates a field assigned to a nonexistent signer.
	ErrInvalidAssignment = errors.New("invalid assignment")

	// ErrDocumentLocked indicates a mutation attempted on a terminal-status document.
	ErrDocumentLocked = errors.New("document locked")

	// ErrWrongSigner indicates a signature submitted for a field assigned to someone else.
	ErrWrongSigner = errors.New("wrong signer")

	// ErrOrderViolation indicates the sequential-signing policy was violated.
	ErrOrderViolation = errors.New("signing order violation")

	// ErrEmptyInput indicates a typed capture whose text is blank after trimming.
	ErrEmptyInput = errors.New("empty input")

	// ErrUploadTooLarge indicates an uploaded signature image above the byte cap.
	ErrUploadTooLarge = errors.New("upload too large")

	// ErrUnsupportedFormat indicates an uploaded image of a disallowed content type.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFieldSigned indicates a structural change to a field that already
	// carries a signature (e.g., deletion).
	ErrFieldSigned = errors.New("field already signed")

	// ErrSignerTerminal indicates an action on a signer who already signed
	// or rejected; both states are terminal for the signer.
	ErrSignerTerminal = errors.New("signer already terminal")

	// ErrPersistence indicates the in-memory transition succeeded but the
	// backing-store save failed. The applied snapshot travels with the error
	// so the caller can retry the save without re-deriving state.
	ErrPersistence = errors.New("persistence failure")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary lock due to repeated failed attempts.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")
)
