package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLookup marks a failed contact lookup. Recovered with a fallback name.
	ErrLookup = errors.New("contact lookup failed")
	// ErrContactNotFound is returned by connections that know the contact is absent.
	ErrContactNotFound = fmt.Errorf("%w: contact not found", ErrLookup)
	// ErrMedia marks a failed attachment download. Recovered with nil media.
	ErrMedia = errors.New("media download failed")
	// ErrValidation marks a send request rejected before any network call.
	ErrValidation = errors.New("invalid send request")
	// ErrInvalidAddress is a validation failure for destinations that do not canonicalize.
	ErrInvalidAddress = fmt.Errorf("%w: invalid destination address", ErrValidation)
	// ErrNotReady marks a send attempted while the session is not ready.
	ErrNotReady = errors.New("connection not ready")
	// ErrDelivery marks a send that failed after exhausting its retries.
	ErrDelivery = errors.New("delivery failed")
)
