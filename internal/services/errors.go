package services

import "errors"

var (
	// ErrValidation means the request broke a business rule; nothing changed.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrConflict signals a lost optimistic-concurrency race or a duplicate.
	ErrConflict = errors.New("conflict")
	// ErrPipelineFailed means a generation run produced no images at all.
	ErrPipelineFailed     = errors.New("generation pipeline failed")
	ErrGenerationCanceled = errors.New("generation canceled")
)
