package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrProviderUnavailable covers network and HTTP failures talking to a provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrAuthExpired means the stored OAuth grant can no longer be refreshed
	// and needs a manual re-authorization.
	ErrAuthExpired = errors.New("oauth authorization expired")
	// ErrMalformedResponse is returned for provider payloads of an unexpected shape.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrPersistence wraps store transaction failures.
	ErrPersistence = errors.New("persistence failure")
)
