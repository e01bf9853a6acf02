package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConnectionURL(t *testing.T) {
	m := NewWithRing(keyring.NewArrayKeyring(nil))

	_, err := m.LoadConnectionURL()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveConnectionURL("ignite://u:p@node1:10800/PUBLIC"))
	got, err := m.LoadConnectionURL()
	require.NoError(t, err)
	assert.Equal(t, "ignite://u:p@node1:10800/PUBLIC", got)
}

func TestManager_Password(t *testing.T) {
	m := NewWithRing(keyring.NewArrayKeyring(nil))

	require.NoError(t, m.SavePassword("Ignite", "Node1:10800", "pw"))
	got, err := m.LoadPassword("ignite", "node1:10800")
	require.NoError(t, err)
	assert.Equal(t, "pw", got)

	_, err = m.LoadPassword("other", "node1:10800")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Clear(t *testing.T) {
	m := NewWithRing(keyring.NewArrayKeyring(nil))
	require.NoError(t, m.SaveConnectionURL("ignite://h/S"))
	require.NoError(t, m.SavePassword("u", "h", "pw"))

	require.NoError(t, m.Clear("u", "h"))
	require.NoError(t, m.Clear("u", "h"))

	_, err := m.LoadConnectionURL()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.LoadPassword("u", "h")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_EmptyValueIsNotFound(t *testing.T) {
	m := NewWithRing(keyring.NewArrayKeyring([]keyring.Item{{Key: KeyConnectionURL}}))
	_, err := m.LoadConnectionURL()
	assert.ErrorIs(t, err, ErrNotFound)
}
