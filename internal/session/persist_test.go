package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daynest/realtime/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	sess := &domain.Session{
		User:  domain.User{ID: 42, Role: domain.RoleParent, Name: "Dana"},
		Token: "tok",
		Entitlements: domain.Entitlements{
			domain.CapabilityMessaging: true,
		},
	}
	require.NoError(t, fs.Save(sess))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, sess.User, loaded.User)
	assert.Equal(t, "tok", loaded.Token)
	assert.True(t, loaded.Entitlements.Can(domain.CapabilityMessaging))

	require.NoError(t, fs.Clear())
	loaded, err = fs.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreEmptySlot(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing an empty slot is not an error.
	require.NoError(t, fs.Clear())
}
