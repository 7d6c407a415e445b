package utils

import "errors"

var (
	ErrEmptyURL            = errors.New("URL cannot be empty")
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrInvalidScheme       = errors.New("URL scheme must be http or https")
	ErrEmptyHost           = errors.New("URL host cannot be empty")
	ErrLocalhostNotAllowed = errors.New("localhost URLs are not allowed")
	ErrPrivateIPNotAllowed = errors.New("private IP addresses are not allowed")

	ErrKeyTooShort      = errors.New("key is too short")
	ErrKeyTooLong       = errors.New("key is too long")
	ErrKeyInvalidFormat = errors.New("key may only contain letters, digits, '-' and '_' and must start and end with a letter or digit")
	ErrKeyReserved      = errors.New("key is reserved")
)
