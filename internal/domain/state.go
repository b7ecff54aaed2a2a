package domain

// ConnectionState is the lifecycle state of the messaging session.
type ConnectionState int32

const (
	StateUninitialized ConnectionState = iota
	StateAwaitingScan
	StateReady
	StateAuthFailed
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth_failed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
