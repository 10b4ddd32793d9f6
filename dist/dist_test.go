package dist

import (
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"
)

func TestHashChunk_Deterministic(t *testing.T) {
	a := HashChunk("math", "var Pi = 3.14159")
	b := HashChunk("math", "var Pi = 3.14159")
	if a != b {
		t.Error("same content hashed differently")
	}

	// Field boundaries matter: moving a byte between module and
	// source must change the hash.
	c := HashChunk("math2", "var Pi = 3.14159")
	d := HashChunk("math", "2var Pi = 3.14159")
	if c == d {
		t.Error("module/source boundary not covered by hash")
	}
}

func TestChunk_Verify(t *testing.T) {
	c := NewChunk("greet", "System.print(\"hello\")")
	if !c.Verify() {
		t.Error("fresh chunk failed verification")
	}

	c.Source = "System.print(\"tampered\")"
	if c.Verify() {
		t.Error("tampered chunk passed verification")
	}
}

func TestChunk_CBORRoundTrip(t *testing.T) {
	c := NewChunk("vec", "class Vec {\n  construct new() {}\n}")

	data, err := MarshalChunk(&c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}

	got, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}

	if got.Hash != c.Hash {
		t.Error("Hash mismatch")
	}
	if got.Module != c.Module {
		t.Errorf("Module: got %q, want %q", got.Module, c.Module)
	}
	if got.Source != c.Source {
		t.Errorf("Source: got %q, want %q", got.Source, c.Source)
	}
}

func TestUnmarshalChunk_RejectsTampered(t *testing.T) {
	c := NewChunk("vec", "var x = 1")
	c.Source = "var x = 2"

	data, err := MarshalChunk(&c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}

	if _, err := UnmarshalChunk(data); err == nil {
		t.Error("expected hash mismatch error")
	}
}

func TestMarshalChunk_Canonical(t *testing.T) {
	c := NewChunk("mod", "var a = 1")

	first, err := MarshalChunk(&c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	second, err := MarshalChunk(&c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	if string(first) != string(second) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestAnnouncement_CBORRoundTrip(t *testing.T) {
	h1 := sha256.Sum256([]byte("one"))
	h2 := sha256.Sum256([]byte("two"))

	a := &Announcement{
		ID:          "peer-1",
		Hashes:      [][32]byte{h1, h2},
		HashVersion: 1,
	}

	data, err := MarshalAnnouncement(a)
	if err != nil {
		t.Fatalf("MarshalAnnouncement: %v", err)
	}

	got, err := UnmarshalAnnouncement(data)
	if err != nil {
		t.Fatalf("UnmarshalAnnouncement: %v", err)
	}

	if got.ID != "peer-1" {
		t.Errorf("ID: got %q, want %q", got.ID, "peer-1")
	}
	if len(got.Hashes) != 2 || got.Hashes[0] != h1 || got.Hashes[1] != h2 {
		t.Error("Hashes mismatch")
	}
	if got.HashVersion != 1 {
		t.Errorf("HashVersion: got %d, want 1", got.HashVersion)
	}
}

func TestMissingFrom(t *testing.T) {
	have := sha256.Sum256([]byte("have"))
	missing := sha256.Sum256([]byte("missing"))

	a := &Announcement{Hashes: [][32]byte{have, missing}}
	want := MissingFrom(a, func(h [32]byte) bool { return h == have })

	if len(want) != 1 || want[0] != missing {
		t.Errorf("MissingFrom: got %d hashes, want the missing one", len(want))
	}
}

func TestStore_PutGet(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	c := NewChunk("math", "var Pi = 3.14159")
	if err := store.Put(c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(c.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Module != "math" || got.Source != c.Source || got.Hash != c.Hash {
		t.Error("stored chunk does not round-trip")
	}

	if !store.Has(c.Hash) {
		t.Error("Has: false for stored chunk")
	}
	if store.Has(sha256.Sum256([]byte("absent"))) {
		t.Error("Has: true for absent chunk")
	}

	_, err = store.Get(sha256.Sum256([]byte("absent")))
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("Get absent: got %v, want ErrChunkNotFound", err)
	}
}

func TestStore_RejectsMismatchedHash(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	c := NewChunk("mod", "var a = 1")
	c.Source = "var a = 2"
	if err := store.Put(c); err == nil {
		t.Error("expected Put to reject a tampered chunk")
	}
}

func TestStore_ByModule_LatestWins(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	old := NewChunk("mod", "var version = 1")
	updated := NewChunk("mod", "var version = 2")
	if err := store.Put(old); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(updated); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.ByModule("mod")
	if err != nil {
		t.Fatalf("ByModule: %v", err)
	}
	if got.Source != "var version = 2" {
		t.Errorf("ByModule: got %q, want the newer source", got.Source)
	}

	_, err = store.ByModule("other")
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("ByModule absent: got %v, want ErrChunkNotFound", err)
	}
}

func TestStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	c := NewChunk("keep", "var kept = true")
	if err := store.Put(c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	store.Close()

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(c.Hash)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Source != c.Source {
		t.Error("chunk did not survive reopen")
	}
}

func TestStore_Sync(t *testing.T) {
	a, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore a: %v", err)
	}
	defer a.Close()
	b, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore b: %v", err)
	}
	defer b.Close()

	c1 := NewChunk("one", "var one = 1")
	c2 := NewChunk("two", "var two = 2")
	if err := a.Put(c1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := a.Put(c2); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ann, err := a.Announce("peer-a")
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}

	want := MissingFrom(ann, b.Has)
	if len(want) != 2 {
		t.Fatalf("want: got %d hashes, expected 2", len(want))
	}

	resp, err := a.Respond(&SyncRequest{Want: want})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	accepted, err := b.Absorb(resp)
	if err != nil {
		t.Fatalf("Absorb: %v", err)
	}
	if accepted != 2 {
		t.Errorf("Absorb: accepted %d, want 2", accepted)
	}

	got, err := b.ByModule("one")
	if err != nil {
		t.Fatalf("ByModule after sync: %v", err)
	}
	if got.Source != "var one = 1" {
		t.Error("synced chunk has wrong source")
	}
}
