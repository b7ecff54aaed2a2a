// Package identity turns sender addresses into display names.
package identity

import (
	"context"
	"log/slog"
	"time"

	"whatsbridge/internal/canon"
	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

// fallbackNames is indexed by the last digit of the sender's number, modulo its length.
var fallbackNames = [...]string{"Ádám", "Bence", "Csaba", "Dóra", "Eszter", "Fanni", "Gábor", "Hanna"}

// ContactLookup is the part of domain.Connection the resolver needs.
type ContactLookup interface {
	GetContact(ctx context.Context, address string) (domain.Contact, error)
}

type Config struct {
	Lookup  ContactLookup
	Timeout time.Duration // 0 = no timeout beyond the connection's own
	Logger  *slog.Logger
}

// Resolver resolves display names. It never fails: a failed lookup yields
// the deterministic fallback name.
type Resolver struct {
	lookup  ContactLookup
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{lookup: cfg.Lookup, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Resolve returns the contact's push name, else its full name, else the bare
// address. A lookup error is not retried.
func (r *Resolver) Resolve(ctx context.Context, address string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	contact, err := r.lookup.GetContact(ctx, address)
	if err != nil {
		name := FallbackName(address)
		metrics.IdentityFallbacks.Inc()
		r.logger.Debug("contact lookup failed, using fallback name",
			"address", address, "fallback", name, "err", err)
		return name
	}

	switch {
	case contact.PushName != "":
		return contact.PushName
	case contact.FullName != "":
		return contact.FullName
	default:
		return canon.User(address)
	}
}

// FallbackName derives a stable pseudo-name from the last digit of the
// address's number. Addresses without digits map to the first name.
func FallbackName(address string) string {
	digits := canon.Digits(canon.User(address))
	if digits == "" {
		return fallbackNames[0]
	}
	last := int(digits[len(digits)-1] - '0')
	return fallbackNames[last%len(fallbackNames)]
}
