package dist

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrChunkNotFound indicates the requested chunk is not in the store.
var ErrChunkNotFound = errors.New("chunk not found")

// Store is a sqlite-backed chunk store. Chunks are keyed by content
// hash; the module column indexes the latest chunk per module name so
// the store can serve as a module resolver.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (creating if necessary) a chunk store at the given
// database path. Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dist: opening store: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		hash BLOB PRIMARY KEY,
		module TEXT NOT NULL,
		source TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: creating chunks table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS chunks_module ON chunks (module)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dist: creating module index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a chunk. The chunk's hash must match its content.
func (s *Store) Put(c Chunk) error {
	if !c.Verify() {
		return fmt.Errorf("dist: refusing to store chunk for module %q with mismatched hash", c.Module)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO chunks (hash, module, source) VALUES (?, ?, ?)",
		c.Hash[:], c.Module, c.Source,
	)
	if err != nil {
		return fmt.Errorf("dist: storing chunk: %w", err)
	}
	return nil
}

// Get returns the chunk with the given hash.
func (s *Store) Get(hash [32]byte) (Chunk, error) {
	var c Chunk
	err := s.db.QueryRow(
		"SELECT module, source FROM chunks WHERE hash = ?", hash[:],
	).Scan(&c.Module, &c.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chunk{}, ErrChunkNotFound
		}
		return Chunk{}, fmt.Errorf("dist: querying chunk: %w", err)
	}
	c.Hash = hash
	return c, nil
}

// Has reports whether the store contains a chunk with the given hash.
func (s *Store) Has(hash [32]byte) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM chunks WHERE hash = ?", hash[:]).Scan(&one)
	return err == nil
}

// ByModule returns the most recently stored chunk for a module name.
func (s *Store) ByModule(module string) (Chunk, error) {
	var c Chunk
	var hash []byte
	err := s.db.QueryRow(
		"SELECT hash, source FROM chunks WHERE module = ? ORDER BY rowid DESC LIMIT 1", module,
	).Scan(&hash, &c.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chunk{}, ErrChunkNotFound
		}
		return Chunk{}, fmt.Errorf("dist: querying module: %w", err)
	}
	copy(c.Hash[:], hash)
	c.Module = module
	return c, nil
}

// Hashes returns every chunk hash in the store.
func (s *Store) Hashes() ([][32]byte, error) {
	rows, err := s.db.Query("SELECT hash FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("dist: querying hashes: %w", err)
	}
	defer rows.Close()

	var hashes [][32]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("dist: scanning hash: %w", err)
		}
		var h [32]byte
		copy(h[:], raw)
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Count returns the number of stored chunks.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("dist: counting chunks: %w", err)
	}
	return n, nil
}

// Announce builds an announcement covering every chunk in the store.
func (s *Store) Announce(id string) (*Announcement, error) {
	hashes, err := s.Hashes()
	if err != nil {
		return nil, err
	}
	return &Announcement{ID: id, Hashes: hashes, HashVersion: 1}, nil
}

// Respond answers a sync request with the wanted chunks the store has.
// Unknown hashes are silently skipped; the requester retries elsewhere.
func (s *Store) Respond(req *SyncRequest) (*SyncResponse, error) {
	resp := &SyncResponse{}
	for _, h := range req.Want {
		c, err := s.Get(h)
		if err != nil {
			if errors.Is(err, ErrChunkNotFound) {
				continue
			}
			return nil, err
		}
		resp.Chunks = append(resp.Chunks, c)
	}
	return resp, nil
}

// Absorb stores every chunk of a sync response, returning how many
// were accepted.
func (s *Store) Absorb(resp *SyncResponse) (int, error) {
	accepted := 0
	for _, c := range resp.Chunks {
		if err := s.Put(c); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}
