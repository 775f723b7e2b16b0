package internal

import "errors"

var (
	// ErrCursorExpired means the provider rejected the sync cursor and a full
	// resync is required.
	ErrCursorExpired = errors.New("sync cursor expired")
	// ErrAuthRejected is terminal for the task that got it; refreshing
	// credentials is somebody else's job.
	ErrAuthRejected      = errors.New("credentials rejected by provider")
	ErrRemoteNotFound    = errors.New("remote event not found")
	ErrRemoteUnavailable = errors.New("remote provider unavailable")
	// ErrPushUnsupported is returned by providers that cannot deliver
	// change notifications; their accounts rely on periodic syncs.
	ErrPushUnsupported = errors.New("provider does not support push notifications")

	ErrNotLinked    = errors.New("account is not linked")
	ErrNotFound     = errors.New("event not found")
	ErrNotOwner     = errors.New("event belongs to another owner")
	ErrInvalidEvent = errors.New("invalid event")
)
