package transcriptstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/transcriptstore"
)

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Write(ctx, "intent-1", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Contains(t, hash, "sha256:")

	data, err := store.Read(ctx, "intent-1")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(data))
}

func TestFileStore_WriteIsDeterministicHash(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	h1, err := store.Write(ctx, "intent-1", []byte("payload"))
	require.NoError(t, err)
	h2, err := store.Write(ctx, "intent-2", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestFileStore_ReadMissingErrors(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Read(context.Background(), "nope")
	require.Error(t, err)
}

func TestFileStore_Exists(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "intent-1")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Write(ctx, "intent-1", []byte("x"))
	require.NoError(t, err)

	ok, err = store.Exists(ctx, "intent-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileStore_Delete(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Write(ctx, "intent-1", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "intent-1"))

	ok, err := store.Exists(ctx, "intent-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_DeleteMissingIsNotAnError(t *testing.T) {
	store, err := transcriptstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), "nope"))
}

func TestFileStore_NewFileStoreCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "transcripts")
	_, err := transcriptstore.NewFileStore(dir)
	require.NoError(t, err)
}
