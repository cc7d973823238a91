// Package store is the embedded document store backing the order engine:
// primary documents plus a fixed set of named secondary indexes keyed by
// precomputed composite strings. Badger transactions provide the atomic
// dual-writes the data model requires. There is deliberately no full-scan
// operation in this contract.
package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
)

// Key space prefixes. Segments are joined with 0x00, which never occurs in
// hex hashes, addresses, decimal numbers, statuses or pair symbols.
const (
	prefixDoc   = "o"
	prefixIndex = "i"
	prefixKV    = "k"
	sep         = "\x00"
)

// ErrAbsent signals a missing document on Get. Not part of the repository
// error taxonomy: absence is an outcome here, not a failure.
var ErrAbsent = badger.ErrKeyNotFound

// Store wraps a Badger database.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the store at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens an ephemeral store, used by tests.
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger db: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// IndexEntry locates one secondary-index posting: composite partition key,
// createdAt sort key, and the primary key it points at.
type IndexEntry struct {
	Index        string
	PartitionKey string
	SortKey      int64
	PrimaryKey   string
}

func docKey(pk string) []byte {
	return []byte(prefixDoc + sep + pk)
}

func kvKey(k string) []byte {
	return []byte(prefixKV + sep + k)
}

func entryKey(e IndexEntry) []byte {
	return []byte(prefixIndex + sep + e.Index + sep + e.PartitionKey + sep +
		encodeSortKey(e.SortKey) + sep + e.PrimaryKey)
}

func partitionPrefix(index, partitionKey string) []byte {
	return []byte(prefixIndex + sep + index + sep + partitionKey + sep)
}

// encodeSortKey renders an int64 sort key as a fixed-width decimal so byte
// order equals numeric order. Sort keys are unix timestamps; negatives are
// clamped to zero.
func encodeSortKey(v int64) string {
	if v < 0 {
		v = 0
	}
	return fmt.Sprintf("%020d", v)
}

// Mutation is the write set of one transactional document update: the new
// document image, stale index entries to drop, fresh ones to insert, and any
// auxiliary key-values committing alongside (the nonce record rides here).
type Mutation struct {
	Doc   []byte
	Put   []IndexEntry
	Del   []IndexEntry
	Extra map[string][]byte
}

// TransactUpdate runs a read-modify-write on one document as a single
// transaction. mutate receives the current document (nil when absent) and
// returns the full write set; an error from mutate aborts the transaction
// and is returned unchanged. Auxiliary keys are read before being written so
// concurrent mutation of them is detected and surfaces as a conflict.
func (s *Store) TransactUpdate(pk string, mutate func(old []byte) (*Mutation, error)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var old []byte
		item, err := txn.Get(docKey(pk))
		if err == nil {
			if old, err = item.ValueCopy(nil); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		m, err := mutate(old)
		if err != nil {
			return err
		}

		for k := range m.Extra {
			if _, err := txn.Get(kvKey(k)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		if err := txn.Set(docKey(pk), m.Doc); err != nil {
			return err
		}
		for _, e := range m.Del {
			if err := txn.Delete(entryKey(e)); err != nil {
				return err
			}
		}
		for _, e := range m.Put {
			if err := txn.Set(entryKey(e), []byte(e.PrimaryKey)); err != nil {
				return err
			}
		}
		for k, v := range m.Extra {
			if err := txn.Set(kvKey(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyWriteErr(err)
}

// Get returns the raw document for pk, or ErrAbsent.
func (s *Store) Get(pk string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(pk))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, apperrors.WrapInternal(err, "store get")
	}
	return doc, nil
}

// GetKV returns the raw value at an auxiliary key, or ErrAbsent.
func (s *Store) GetKV(k string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(k))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, apperrors.WrapInternal(err, "store get")
	}
	return val, nil
}

// PutKV writes an auxiliary key-value in its own transaction.
func (s *Store) PutKV(k string, v []byte) error {
	return classifyWriteErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kvKey(k), v)
	}))
}

// Delete removes a document together with its index entries, atomically for
// that one document.
func (s *Store) Delete(pk string, entries []IndexEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(docKey(pk)); err != nil {
			return err
		}
		for _, e := range entries {
			if err := txn.Delete(entryKey(e)); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyWriteErr(err)
}

func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err // mutate callbacks abort with already-classified errors
	}
	if err == badger.ErrConflict {
		return apperrors.WrapConflict(err, "transactional write contention")
	}
	return apperrors.WrapInternal(err, "store write")
}

// IndexQuery is one bounded page request against a secondary index.
// MinSort/MaxSort are inclusive bounds on the sort key; StartAfter, when
// set, resumes strictly after that entry in iteration order.
type IndexQuery struct {
	Index        string
	PartitionKey string
	MinSort      int64
	MaxSort      int64
	Desc         bool
	Limit        int
	StartAfter   *IndexEntry
}

// QueryIndex returns up to Limit entries for one partition of one index, in
// sort-key order (ties broken by primary key), ascending or descending.
func (s *Store) QueryIndex(q IndexQuery) ([]IndexEntry, error) {
	prefix := partitionPrefix(q.Index, q.PartitionKey)
	var out []IndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = q.Desc
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := seekKey(q, prefix)
		skipFirst := q.StartAfter != nil
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			e, ok := parseEntry(it.Item().Key(), q.Index, q.PartitionKey, prefix)
			if !ok {
				continue
			}
			if skipFirst && e.PrimaryKey == q.StartAfter.PrimaryKey && e.SortKey == q.StartAfter.SortKey {
				skipFirst = false
				continue
			}
			skipFirst = false
			if e.SortKey < q.MinSort {
				if q.Desc {
					break // descending: everything further is older
				}
				continue
			}
			if e.SortKey > q.MaxSort {
				if q.Desc {
					continue
				}
				break // ascending: everything further is newer
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.WrapInternal(err, "index query")
	}
	return out, nil
}

// CountIndex counts entries within the sort bounds of one partition.
func (s *Store) CountIndex(index, partitionKey string, minSort, maxSort int64) (int, error) {
	prefix := partitionPrefix(index, partitionKey)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			e, ok := parseEntry(it.Item().Key(), index, partitionKey, prefix)
			if !ok {
				continue
			}
			if e.SortKey < minSort {
				continue
			}
			if e.SortKey > maxSort {
				break
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.WrapInternal(err, "index count")
	}
	return count, nil
}

// seekKey picks the iterator start position for q. Badger's reverse iterator
// needs a seek at or past the end of the prefix range.
func seekKey(q IndexQuery, prefix []byte) []byte {
	if q.StartAfter != nil {
		return entryKey(*q.StartAfter)
	}
	if q.Desc {
		return append(append([]byte{}, prefix...), 0xFF)
	}
	return prefix
}

// parseEntry decodes sort key and primary key from a stored index key. The
// sort key occupies a fixed 20 bytes after the partition prefix.
func parseEntry(key []byte, index, partitionKey string, prefix []byte) (IndexEntry, bool) {
	rest := key[len(prefix):]
	i := bytes.IndexByte(rest, 0)
	if i != 20 || len(rest) < 22 {
		return IndexEntry{}, false
	}
	var sk int64
	if _, err := fmt.Sscanf(string(rest[:20]), "%d", &sk); err != nil {
		return IndexEntry{}, false
	}
	return IndexEntry{
		Index:        index,
		PartitionKey: partitionKey,
		SortKey:      sk,
		PrimaryKey:   string(rest[21:]),
	}, true
}
