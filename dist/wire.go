package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical encoding keeps the wire form deterministic, so the same
// chunk always serializes to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes. The chunk's
// hash is verified against its content.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("dist: unmarshal chunk: %w", err)
	}
	if !c.Verify() {
		return nil, fmt.Errorf("dist: hash mismatch for module %q: declared %x, computed %x",
			c.Module, c.Hash, HashChunk(c.Module, c.Source))
	}
	return &c, nil
}

// MarshalAnnouncement serializes an Announcement to CBOR bytes.
func MarshalAnnouncement(a *Announcement) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalAnnouncement deserializes an Announcement from CBOR bytes.
func UnmarshalAnnouncement(data []byte) (*Announcement, error) {
	var a Announcement
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("dist: unmarshal announcement: %w", err)
	}
	return &a, nil
}

// MarshalSyncRequest serializes a SyncRequest to CBOR bytes.
func MarshalSyncRequest(r *SyncRequest) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalSyncRequest deserializes a SyncRequest from CBOR bytes.
func UnmarshalSyncRequest(data []byte) (*SyncRequest, error) {
	var r SyncRequest
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal sync request: %w", err)
	}
	return &r, nil
}

// MarshalSyncResponse serializes a SyncResponse to CBOR bytes.
func MarshalSyncResponse(r *SyncResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalSyncResponse deserializes a SyncResponse from CBOR bytes.
// Every chunk inside must carry a valid hash.
func UnmarshalSyncResponse(data []byte) (*SyncResponse, error) {
	var r SyncResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal sync response: %w", err)
	}
	for i := range r.Chunks {
		if !r.Chunks[i].Verify() {
			return nil, fmt.Errorf("dist: hash mismatch for module %q in response", r.Chunks[i].Module)
		}
	}
	return &r, nil
}
