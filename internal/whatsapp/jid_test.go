package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	"whatsbridge/internal/domain"
)

func TestToJID(t *testing.T) {
	tests := []struct {
		addr string
		want types.JID
	}{
		{"36301234567@c.us", types.NewJID("36301234567", types.DefaultUserServer)},
		{"120363025@g.us", types.NewJID("120363025", types.GroupServer)},
		{"36301234567@s.whatsapp.net", types.NewJID("36301234567", types.DefaultUserServer)},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := toJID(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToJID_Invalid(t *testing.T) {
	for _, addr := range []string{"", "36301234567", "@c.us", "@g.us"} {
		_, err := toJID(addr)
		assert.ErrorIs(t, err, domain.ErrInvalidAddress, addr)
	}
}

func TestFromJID(t *testing.T) {
	assert.Equal(t, "36301234567@c.us", fromJID(types.NewJID("36301234567", types.DefaultUserServer)))
	assert.Equal(t, "120363025@g.us", fromJID(types.NewJID("120363025", types.GroupServer)))
	assert.Equal(t, "36301234567@c.us", fromJID(types.NewADJID("36301234567", 0, 3)))
}

func TestJIDRoundTrip(t *testing.T) {
	for _, addr := range []string{"36301234567@c.us", "120363025@g.us"} {
		jid, err := toJID(addr)
		require.NoError(t, err)
		assert.Equal(t, addr, fromJID(jid))
	}
}
