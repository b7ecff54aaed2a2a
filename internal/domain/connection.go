package domain

import "context"

// Listener receives connection events. One handler per event kind.
// Implementations must not assume handlers run on any particular goroutine.
type Listener interface {
	OnQR(code string)
	OnReady()
	OnAuthFailure(reason string)
	OnDisconnected(reason string)
	OnMessage(ev RawEvent)
}

// Connection is the messaging-network session: it emits events to its
// listener and exposes the lookup, download and send primitives.
type Connection interface {
	// Subscribe sets the listener. Must be called before Initialize.
	Subscribe(l Listener)
	// Initialize starts (or restarts) the session. Events follow asynchronously.
	Initialize(ctx context.Context) error
	GetContact(ctx context.Context, address string) (Contact, error)
	SendText(ctx context.Context, address, text string) error
	DownloadMedia(ctx context.Context, ev RawEvent) (Media, error)
	Close() error
}
