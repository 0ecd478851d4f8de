package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient cookies")
	ErrNoAvatarSlots       = errors.New("no avatar slots left")
	ErrNoActiveAvatar      = errors.New("no active avatar")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("provider unavailable")
)
