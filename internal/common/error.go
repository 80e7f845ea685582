// Package common defines sentinel errors shared across layers of the
// service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrFieldRequired = errors.New("required field is missing")

	// Upload validation errors, detected before any record or blob mutation.
	ErrFileSize         = errors.New("incorrect file size")
	ErrFileType         = errors.New("incorrect file type")
	ErrFileTypeMismatch = errors.New("declared type does not match path")
	ErrFileNameMissing  = errors.New("file name is missing")

	// Download locator errors.
	ErrFilePath = errors.New("incorrect path or id")

	// Uniqueness-constraint conflicts, translated from SQLSTATE 23505.
	ErrUserAlreadyExists = errors.New("user with this username already exist")
	ErrFileConflict      = errors.New("file path already taken")

	// Auth errors.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("invalid token")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")
)
