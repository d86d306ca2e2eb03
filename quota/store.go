// Package quota implements the embedded, crash-consistent ledger that maps
// a credential's identity digest to its remaining call budget.
package quota

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

var entryBucket = []byte("quota-entries")

// ErrNotFound is returned when no ledger entry exists for a key.
var ErrNotFound = errors.New("quota: entry not found")

// ErrInsufficientQuota is returned by Charge when an entry's remaining
// quota is smaller than the requested amount.
var ErrInsufficientQuota = errors.New("quota: insufficient remaining quota")

// Entry is a single ledger record: the namespaced hex key it was stored
// under, the macaroon signing secret (equal to the identity digest per the
// format's invariant binding secret and key), and the remaining quota in
// millisatoshis.
type Entry struct {
	ID     string
	Secret [32]byte
	Quota  uint64
}

func encodeEntry(e Entry) []byte {
	var buf bytes.Buffer

	idLen := uint32(len(e.ID))
	binary.Write(&buf, binary.BigEndian, idLen)
	buf.WriteString(e.ID)
	buf.Write(e.Secret[:])
	binary.Write(&buf, binary.BigEndian, e.Quota)

	return buf.Bytes()
}

func decodeEntry(raw []byte) (Entry, error) {
	r := bytes.NewReader(raw)

	var idLen uint32
	if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
		return Entry{}, fmt.Errorf("decode id length: %w", err)
	}

	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return Entry{}, fmt.Errorf("decode id: %w", err)
	}

	var e Entry
	e.ID = string(idBytes)

	if _, err := io.ReadFull(r, e.Secret[:]); err != nil {
		return Entry{}, fmt.Errorf("decode secret: %w", err)
	}

	if err := binary.Read(r, binary.BigEndian, &e.Quota); err != nil {
		return Entry{}, fmt.Errorf("decode quota: %w", err)
	}

	return e, nil
}

// Store is a single-process, embedded key-value ledger backed by a bolt
// database file. All operations on a given key are linearized by bolt's
// single-writer transaction model, satisfying the read-modify-write
// atomicity required of Charge.
type Store struct {
	db *bbolt.DB
}

// NewStore opens (creating if necessary) the bolt database at path and
// ensures the ledger bucket exists.
func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open quota store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create ledger bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get looks up the ledger entry for key, returning ErrNotFound if absent.
func (s *Store) Get(key string) (Entry, error) {
	var entry Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(entryBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}

		decoded, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})

	return entry, err
}

// Put upserts a ledger entry, keyed by entry.ID.
func (s *Store) Put(entry Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entryBucket).Put(
			[]byte(entry.ID), encodeEntry(entry),
		)
	})
}

// Delete removes the ledger entry for key, if any. Deleting an absent key
// is a no-op.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entryBucket).Delete([]byte(key))
	})
}

// Charge atomically decrements the remaining quota for key by amount and
// returns the quota remaining after the charge. The read, compare, and
// write happen inside a single bolt write transaction, so concurrent
// charges against the same key are linearized without an additional
// per-key mutex.
func (s *Store) Charge(key string, amount uint64) (uint64, error) {
	var remaining uint64

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entryBucket)

		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}

		entry, err := decodeEntry(raw)
		if err != nil {
			return err
		}

		if entry.Quota < amount {
			return ErrInsufficientQuota
		}

		entry.Quota -= amount
		remaining = entry.Quota

		return bucket.Put([]byte(key), encodeEntry(entry))
	})

	return remaining, err
}

// ForEach iterates every ledger entry, invoking fn for each. Used by the
// admin tooling to compute aggregate stats without holding a long-lived
// transaction open for writers.
func (s *Store) ForEach(fn func(Entry) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entryBucket).ForEach(func(k, v []byte) error {
			entry, err := decodeEntry(v)
			if err != nil {
				return err
			}
			return fn(entry)
		})
	})
}
