// Package signature computes content and configuration hashes for build tasks
// and keeps the per-session record of the last attempt for every output path.
package signature

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/sha3"
)

// Size is the length of a signature in bytes
const Size = 32

// Signature identifies the exact inputs and configuration of a task.
type Signature [Size]byte

// String returns the hex encoding of the signature
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether the signature is unset
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Entry is one input of a task: its path and the digest of its content.
type Entry struct {
	Path   string
	Digest uint64
}

// Input is everything that contributes to a task signature.
type Input struct {
	Builder string
	Inputs  []Entry
	Outputs []string
	Extra   []byte
}

// Digest returns the content digest of data
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Compute hashes the builder name, the ordered inputs with their digests, the
// ordered outputs and the extra builder bytes. Every variable-length field is
// length-prefixed so that adjacent fields cannot be confused.
func Compute(in Input) Signature {
	h := sha3.New256()

	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeBytes := func(b []byte) {
		writeUint(uint64(len(b)))
		h.Write(b)
	}

	writeBytes([]byte(in.Builder))

	writeUint(uint64(len(in.Inputs)))
	for _, e := range in.Inputs {
		writeBytes([]byte(e.Path))
		writeUint(e.Digest)
	}

	writeUint(uint64(len(in.Outputs)))
	for _, o := range in.Outputs {
		writeBytes([]byte(o))
	}

	writeBytes(in.Extra)

	var sig Signature
	copy(sig[:], h.Sum(nil))
	return sig
}
