// Package dist implements content-addressed distribution of module
// source. Modules travel as chunks: the source text plus a SHA-256 of
// its canonical encoding. Peers negotiate transfers with have/want
// messages, and a sqlite-backed store keeps chunks across runs.
package dist

import (
	"crypto/sha256"
	"encoding/binary"
)

// Chunk is the atomic unit of distribution: one module's source plus
// its content hash. The receiver recomputes the hash before accepting.
type Chunk struct {
	Hash   [32]byte `cbor:"1,keyasint"`
	Module string   `cbor:"2,keyasint"`
	Source string   `cbor:"3,keyasint"`
}

// HashChunk computes the content hash of a module chunk. The hash
// covers a format tag, the module name, and the source text, each
// length-prefixed so the fields cannot bleed into each other.
func HashChunk(module, source string) [32]byte {
	var buf []byte

	writeString := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}

	// Tag byte for the chunk hash format.
	buf = append(buf, 0x01)
	writeString(module)
	writeString(source)

	return sha256.Sum256(buf)
}

// NewChunk builds a chunk for a module, computing its hash.
func NewChunk(module, source string) Chunk {
	return Chunk{
		Hash:   HashChunk(module, source),
		Module: module,
		Source: source,
	}
}

// Verify recomputes the chunk's hash and reports whether it matches
// the declared one.
func (c *Chunk) Verify() bool {
	return HashChunk(c.Module, c.Source) == c.Hash
}

// Announcement advertises the chunks a peer has available.
type Announcement struct {
	ID          string     `cbor:"1,keyasint"` // sender identity
	Hashes      [][32]byte `cbor:"2,keyasint"`
	HashVersion byte       `cbor:"3,keyasint"`
}

// SyncRequest is the have/want negotiation message.
type SyncRequest struct {
	Have [][32]byte `cbor:"1,keyasint"`
	Want [][32]byte `cbor:"2,keyasint"`
}

// SyncResponse carries the requested chunks.
type SyncResponse struct {
	Chunks []Chunk `cbor:"1,keyasint"`
}

// MissingFrom returns the announced hashes the store does not have,
// in announcement order.
func MissingFrom(a *Announcement, has func([32]byte) bool) [][32]byte {
	var want [][32]byte
	for _, h := range a.Hashes {
		if !has(h) {
			want = append(want, h)
		}
	}
	return want
}
