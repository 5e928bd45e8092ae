package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_Dir(t *testing.T) {
	store, err := NewStore(context.Background(), &BackendConfig{
		Type:   "dir",
		Config: map[string]string{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, store)
}

func TestNewStore_DirRequiresPath(t *testing.T) {
	_, err := NewStore(context.Background(), &BackendConfig{Type: "dir", Config: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dir")
}

func TestNewStore_UnknownBackend(t *testing.T) {
	_, err := NewStore(context.Background(), &BackendConfig{Type: "etcd", Config: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestNewStore_NilConfig(t *testing.T) {
	_, err := NewStore(context.Background(), nil)
	assert.Error(t, err)
}
