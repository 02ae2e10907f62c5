package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-rag-chatbot/internal/storage"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.txt", "text/plain", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://path/page.txt", uri)
	assert.Equal(t, "text/plain", store.ContentType("path/page.txt"))

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "path/page.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := store.GetObject(context.Background(), "path/page.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStoreList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBlobStore()
	for _, name := range []string{"b.txt", "a.txt", "docs/c.pdf"} {
		_, err := store.PutObject(ctx, name, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}

	root, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, root)

	docs, err := store.List(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/c.pdf"}, docs)
}
