package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserID(t *testing.T) {
	valid := []string{
		"@alice:example.com",
		"@bob:matrix.org:8448",
		"@:example.com",
	}
	for _, raw := range valid {
		t.Run("accepts "+raw, func(t *testing.T) {
			id, err := ParseUserID(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, id.String())
		})
	}

	invalid := []string{"", "@", "alice:example.com", "@alice", "@alice:"}
	for _, raw := range invalid {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := ParseUserID(raw)
			assert.Error(t, err)
		})
	}
}

func TestUserIDParts(t *testing.T) {
	id := UserID("@alice:matrix.example.com:8448")
	assert.Equal(t, "alice", id.Localpart())
	assert.Equal(t, "matrix.example.com:8448", id.Server())
}

func TestRemoteUserDisplayName(t *testing.T) {
	assert.Equal(t, "alice_tg", (&RemoteUser{Username: "alice_tg", FirstName: "Alice"}).DisplayName())
	assert.Equal(t, "Alice Liddell", (&RemoteUser{FirstName: "Alice", LastName: "Liddell"}).DisplayName())
	assert.Equal(t, "Liddell", (&RemoteUser{LastName: "Liddell"}).DisplayName())
	assert.Equal(t, "", (&RemoteUser{}).DisplayName())
}
