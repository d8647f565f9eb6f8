package ratelimit

import "errors"

var (
	// ErrInvalidArgument indicates an empty subject, IP, or action. Caller bug;
	// always propagated.
	ErrInvalidArgument = errors.New("ratelimit: invalid argument")

	// ErrUnknownAction indicates no static config exists for the action and no
	// override was supplied. Caller bug; always propagated.
	ErrUnknownAction = errors.New("ratelimit: unknown action")

	// ErrStorageUnavailable wraps counter-store failures on paths that
	// propagate them (ClearRateLimit). Check paths fail open instead.
	ErrStorageUnavailable = errors.New("ratelimit: storage unavailable")

	// ErrNotFound is returned by stores when a key has no entry. Absence is
	// meaningful state for the limiter, not an error at the service level.
	ErrNotFound = errors.New("ratelimit: entry not found")
)
