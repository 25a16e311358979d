package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:5000/")
	require.NoError(t, err)

	ctx := context.Background()
	obj, err := store.Put(ctx, "uploads/7/abc.png", strings.NewReader("pixels"), 6, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "uploads/7/abc.png", obj.Key)
	assert.Equal(t, "http://localhost:5000/files/uploads/7/abc.png", obj.URL)
	assert.Equal(t, int64(6), obj.Size)

	data, err := os.ReadFile(filepath.Join(dir, "uploads", "7", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, store.Delete(ctx, obj.Key))
	assert.ErrorIs(t, store.Delete(ctx, obj.Key), ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost")
	require.NoError(t, err)

	for _, key := range []string{"../secret", "uploads/../../x", "", "/abs", "a//b"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
	}
}

func TestLocalStoreHandler(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost")
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "uploads/1/x.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/uploads/1/x.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())

	for _, dir := range []string{"/files/", "/files/uploads/", "/files/uploads/1/", "/files/uploads/1"} {
		rec := httptest.NewRecorder()
		store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, dir, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, dir)
		assert.NotContains(t, rec.Body.String(), "x.txt", dir)
	}
}
