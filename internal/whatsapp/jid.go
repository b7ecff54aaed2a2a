package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"whatsbridge/internal/canon"
	"whatsbridge/internal/domain"
)

// toJID converts a canonical bridge address into a whatsmeow JID.
func toJID(addr string) (types.JID, error) {
	switch {
	case strings.HasSuffix(addr, canon.IndividualSuffix):
		user := canon.User(addr)
		if user == "" {
			break
		}
		return types.NewJID(user, types.DefaultUserServer), nil
	case strings.HasSuffix(addr, canon.GroupSuffix):
		user := canon.User(addr)
		if user == "" {
			break
		}
		return types.NewJID(user, types.GroupServer), nil
	case strings.Contains(addr, "@"):
		jid, err := types.ParseJID(addr)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("%w: %q: %w", domain.ErrInvalidAddress, addr, err)
		}
		return jid, nil
	}
	return types.EmptyJID, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, addr)
}

// fromJID renders a JID the way the bridge's clients expect: individual
// chats end in @c.us, groups in @g.us. Other servers keep their own suffix.
func fromJID(jid types.JID) string {
	jid = jid.ToNonAD()
	switch jid.Server {
	case types.DefaultUserServer:
		return jid.User + canon.IndividualSuffix
	case types.GroupServer:
		return jid.User + canon.GroupSuffix
	default:
		return jid.String()
	}
}
