package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("chunk:doc1:0", []byte("hello world")))

	value, found, err := s.Get("chunk:doc1:0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello world"), value)

	_, found, err = s.Get("chunk:doc1:1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Delete("chunk:doc1:0"))
	_, found, err = s.Get("chunk:doc1:0")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete("chunk:doc1:0"))
}

func TestStore_JSON(t *testing.T) {
	s := newTestStore(t)

	type record struct {
		DocID  string `json:"doc_id"`
		Status string `json:"status"`
	}

	require.NoError(t, s.SetJSON("status:doc1", record{DocID: "doc1", Status: "processed"}))

	var got record
	found, err := s.GetJSON("status:doc1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "processed", got.Status)

	found, err = s.GetJSON("status:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Scan(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("chunk:a:0", []byte("one")))
	require.NoError(t, s.Set("chunk:a:1", []byte("two")))
	require.NoError(t, s.Set("status:a", []byte("done")))

	seen := map[string]string{}
	err := s.Scan("chunk:", func(key string, value []byte) error {
		seen[key] = string(value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"chunk:a:0": "one", "chunk:a:1": "two"}, seen)
}

func TestStore_DropAll(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("chunk:a:0", []byte("one")))
	require.NoError(t, s.DropAll())

	_, found, err := s.Get("chunk:a:0")
	require.NoError(t, err)
	assert.False(t, found)
}
