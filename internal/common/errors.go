// Package common defines shared sentinel errors and small helpers used across
// the server, the worker and their storage layers. Callers should use errors.Is
// to match these values; components wrap them with %w to add detail.
package common

import "errors"

var (
	// Local staging disk failures (read/write of staged content).
	ErrIO = errors.New("io error")

	// Relational store failures, including failed transactions.
	ErrStorage = errors.New("storage error")

	// Object store API failures, including partial multipart uploads.
	ErrObjectStore = errors.New("object store error")

	// Digest of retrieved plaintext does not match the stored content hash.
	ErrIntegrity = errors.New("integrity error")

	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")

	// Service-level errors.
	ErrInvalidOperation = errors.New("invalid operation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotReady         = errors.New("content not ready")

	// Auth errors (missing, invalid or malformed token).
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)
