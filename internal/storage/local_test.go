package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SaveAndRemove(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root, 1024)
	require.NoError(t, err)

	tenantID := uuid.New().String()
	path, err := store.Save(context.Background(), tenantID, "proposals", "../../Offer.PDF", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, filepath.Join(root, tenantID, "proposals")))
	assert.Equal(t, ".pdf", filepath.Ext(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	require.NoError(t, store.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLocal_TooLarge(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 4)
	require.NoError(t, err)

	tenantID := uuid.New().String()
	_, err = store.Save(context.Background(), tenantID, "proposals", "a.pdf", strings.NewReader("too long"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, _ := os.ReadDir(filepath.Join(store.root, tenantID, "proposals"))
	assert.Empty(t, entries, "partial file must be cleaned up")
}

func TestLocal_RejectsBadTenant(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 1024)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../etc", "proposals", "a.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocal_RemoveOutsideRoot(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 1024)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.Error(t, store.Remove(outside))
	assert.FileExists(t, outside)
}

func TestAllowedExtension(t *testing.T) {
	assert.True(t, AllowedExtension("proposal.pdf"))
	assert.True(t, AllowedExtension("PROPOSAL.DOCX"))
	assert.False(t, AllowedExtension("run.sh"))
	assert.False(t, AllowedExtension("noext"))
}
