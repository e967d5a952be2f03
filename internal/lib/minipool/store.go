package minipool

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Store is the persistent record store.  Records are addressed by their
// stable index; a secondary namespace maps validator identity -> index+1
// (0 meaning absent) so the index<->identity binding survives any number of
// reuse cycles.  There is no deletion - terminal records are overwritten in
// place on reuse.
//
// All writes belonging to one operation go through a single batch so the
// operation either commits entirely or not at all.
type Store struct {
	db *leveldb.DB
}

var (
	recordPrefix   = []byte("m:")
	identityPrefix = []byte("i:")

	keyCount             = []byte("g:count")
	keyLiquidStakedTotal = []byte("g:liquidStakedTotal")
	keyHeldFunds         = []byte("g:heldFunds")
	keyRewardCycleEnd    = []byte("g:rewardCycleEnd")
)

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open record store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory backs the store with transient memory storage; used by tests
// and the CLI dry-run paths.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(index uint64) []byte {
	k := make([]byte, len(recordPrefix)+8)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[len(recordPrefix):], index)
	return k
}

func identityKey(identity string) []byte {
	return bytes.Join([][]byte{identityPrefix, []byte(identity)}, nil)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *Store) getUint64(key []byte) (uint64, error) {
	val, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed stored value for key %q", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

// FindIndex resolves a validator identity to its record index.
func (s *Store) FindIndex(identity string) (uint64, bool, error) {
	plusOne, err := s.getUint64(identityKey(identity))
	if err != nil {
		return 0, false, err
	}
	if plusOne == 0 {
		return 0, false, nil
	}
	return plusOne - 1, true, nil
}

func (s *Store) ByIndex(index uint64) (*Minipool, error) {
	val, err := s.db.Get(recordKey(index), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrMinipoolNotFound
	}
	if err != nil {
		return nil, err
	}
	var m Minipool
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("unable to decode record %d: %w", index, err)
	}
	return &m, nil
}

func (s *Store) ByIdentity(identity string) (*Minipool, error) {
	index, found, err := s.FindIndex(identity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMinipoolNotFound
	}
	return s.ByIndex(index)
}

// Count returns the number of records ever created; it is also the next
// index to assign.
func (s *Store) Count() (uint64, error) {
	return s.getUint64(keyCount)
}

// List returns up to limit records starting at offset, optionally filtered by
// status.  Offsets apply after filtering.
func (s *Store) List(filter *MinipoolStatus, offset, limit uint64) ([]*Minipool, error) {
	count, err := s.Count()
	if err != nil {
		return nil, err
	}
	var (
		out     []*Minipool
		skipped uint64
	)
	for i := uint64(0); i < count; i++ {
		m, err := s.ByIndex(i)
		if err != nil {
			return nil, err
		}
		if filter != nil && m.Status != *filter {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, m)
		if limit > 0 && uint64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LiquidStakedTotal() (uint64, error) {
	return s.getUint64(keyLiquidStakedTotal)
}

func (s *Store) HeldFunds() (uint64, error) {
	return s.getUint64(keyHeldFunds)
}

// RewardCycleEnd is the global rewards-forwarding cursor, independent of any
// single record.
func (s *Store) RewardCycleEnd() (int64, error) {
	v, err := s.getUint64(keyRewardCycleEnd)
	return int64(v), err
}

// --- batch writers; mutations apply only when the batch commits ---

func (s *Store) PutRecord(b *leveldb.Batch, m *Minipool) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to encode record %d: %w", m.Index, err)
	}
	b.Put(recordKey(m.Index), val)
	return nil
}

// BindIdentity appends to the identity->index map.  The binding is permanent;
// callers only invoke this when allocating a brand new index.
func (s *Store) BindIdentity(b *leveldb.Batch, identity string, index uint64) {
	b.Put(identityKey(identity), encodeUint64(index+1))
}

func (s *Store) SetCount(b *leveldb.Batch, n uint64) {
	b.Put(keyCount, encodeUint64(n))
}

func (s *Store) SetLiquidStakedTotal(b *leveldb.Batch, v uint64) {
	b.Put(keyLiquidStakedTotal, encodeUint64(v))
}

func (s *Store) SetHeldFunds(b *leveldb.Batch, v uint64) {
	b.Put(keyHeldFunds, encodeUint64(v))
}

func (s *Store) SetRewardCycleEnd(b *leveldb.Batch, t int64) {
	b.Put(keyRewardCycleEnd, encodeUint64(uint64(t)))
}

func (s *Store) Commit(b *leveldb.Batch) error {
	return s.db.Write(b, nil)
}
