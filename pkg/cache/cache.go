// Package cache stores built outputs keyed by task signature so that a
// task whose outputs were lost can be restored without running its builder.
package cache

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/golang/snappy"
	"golang.org/x/crypto/sha3"

	"cbs/pkg/signature"
)

// Cache maps keys to output content
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
}

// Key returns the cache key of an output path produced under sig
func Key(sig signature.Signature, path string) string {
	h := sha3.New256()
	h.Write(sig[:])
	h.Write([]byte(path))
	return hex.EncodeToString(h.Sum(nil))
}

// Memory is a bounded in-memory cache holding snappy compressed content
type Memory struct {
	entries *lru.Cache[string, []byte]
}

// NewMemory creates a cache holding at most size entries
func NewMemory(size int) (*Memory, error) {
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries}, nil
}

// Get returns the decompressed content stored under key
func (m *Memory) Get(key string) ([]byte, bool) {
	encoded, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	data, err := snappy.Decode(nil, encoded)
	if err != nil {
		m.entries.Remove(key)
		return nil, false
	}
	return data, true
}

// Put stores data under key
func (m *Memory) Put(key string, data []byte) {
	m.entries.Add(key, snappy.Encode(nil, data))
}

// Len returns the number of entries
func (m *Memory) Len() int {
	return m.entries.Len()
}
