package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbs/pkg/signature"
)

func TestMemory(t *testing.T) {
	m, err := NewMemory(2)
	require.NoError(t, err)

	sig := signature.Compute(signature.Input{Builder: "Copy"})
	key := Key(sig, "build/a.out")

	_, ok := m.Get(key)
	assert.False(t, ok)

	data := bytes.Repeat([]byte("test data "), 100)
	m.Put(key, data)
	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, data, got)

	m.Put(Key(sig, "build/b.out"), []byte("b"))
	m.Put(Key(sig, "build/c.out"), []byte("c"))
	assert.Equal(t, 2, m.Len())
	_, ok = m.Get(Key(sig, "build/b.out"))
	assert.False(t, ok, "least recently used entry is evicted")
}

func TestKey(t *testing.T) {
	a := signature.Compute(signature.Input{Builder: "A"})
	b := signature.Compute(signature.Input{Builder: "B"})
	assert.Equal(t, Key(a, "x"), Key(a, "x"))
	assert.NotEqual(t, Key(a, "x"), Key(b, "x"))
	assert.NotEqual(t, Key(a, "x"), Key(a, "y"))
}

func TestNewMemory_InvalidSize(t *testing.T) {
	_, err := NewMemory(0)
	assert.Error(t, err)
}
