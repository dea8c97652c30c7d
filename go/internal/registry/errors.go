package registry

import "errors"

var (
	ErrScoreOutOfRange = errors.New("score out of range")
	ErrPaused          = errors.New("submissions paused")
	ErrUnauthorized    = errors.New("caller is not the registry owner")
	ErrInvalidIdentity = errors.New("identity is required")
)
