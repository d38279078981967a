// Package storage maintains the chain index and the object pool of
// unclaimed transaction records in an ordered key value store. All
// mutations are applied through write batches committed atomically.
package storage

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbStorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// defaultOptions are the leveldb options used when opening a database.
var defaultOptions = opt.Options{
	Compression:            opt.NoCompression,
	BlockCacheCapacity:     64 * opt.MiB,
	WriteBuffer:            32 * opt.MiB,
	DisableSeeksCompaction: true,
}

// =============================================================================

// Storage defines a thin wrapper around leveldb.
type Storage struct {
	ldb  *leveldb.DB
	sync bool
}

// Open opens the leveldb instance at the given path. If it doesn't exist it
// is created. A corrupted database is recovered.
func Open(path string) (*Storage, error) {
	ldb, err := leveldb.OpenFile(path, &defaultOptions)

	var corrupted *ldbErrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		ldb, err = leveldb.RecoverFile(path, &defaultOptions)
		if err != nil {
			return nil, errors.Wrapf(err, "recovering leveldb at %s", path)
		}
	}

	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", path)
	}

	return &Storage{ldb: ldb, sync: true}, nil
}

// OpenMem opens a leveldb instance backed by memory. Used by tests and
// ephemeral nodes.
func OpenMem() (*Storage, error) {
	ldb, err := leveldb.Open(ldbStorage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening memory leveldb")
	}

	return &Storage{ldb: ldb}, nil
}

// Close closes the leveldb instance.
func (s *Storage) Close() error {
	return s.ldb.Close()
}

// Commit applies every mutation in the batch as one atomic write. Either
// all mutations become visible or none do.
func (s *Storage) Commit(wb *WriteBatch) error {
	batch := new(leveldb.Batch)
	for _, op := range wb.Ops() {
		switch op.Kind {
		case OpPut:
			batch.Put(op.Key, op.Value)
		case OpDelete:
			batch.Delete(op.Key)
		default:
			return errors.Errorf("unknown batch op kind %d", op.Kind)
		}
	}

	if err := s.ldb.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return errors.Wrapf(err, "writing batch of %d ops", batch.Len())
	}

	return nil
}

// =============================================================================

// GetBlock returns the block with the specified hash.
func (s *Storage) GetBlock(hash string) (database.Block, error) {
	var block database.Block
	if err := s.getJSON(BlockKey(hash), &block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// GetBlockByHeight returns the block at the specified height.
func (s *Storage) GetBlockByHeight(height uint64) (database.Block, error) {
	hash, err := s.get(HeightKey(height))
	if err != nil {
		return database.Block{}, err
	}

	return s.GetBlock(string(hash))
}

// PutBlock writes the block and its height index entry outside of any
// commit round.
func (s *Storage) PutBlock(block database.Block) error {
	wb := NewWriteBatch()
	if err := wb.PutBlock(block); err != nil {
		return err
	}

	return s.Commit(wb)
}

// HasBlock reports whether the block with the specified hash is stored.
func (s *Storage) HasBlock(hash string) (bool, error) {
	ok, err := s.ldb.Has(BlockKey(hash), nil)
	if err != nil {
		return false, errors.Wrapf(err, "checking block %s", hash)
	}

	return ok, nil
}

// Head returns the block at the head of the chain. ErrNotFound is returned
// when the chain is empty.
func (s *Storage) Head() (database.Block, error) {
	hash, err := s.get([]byte(headKey))
	if err != nil {
		return database.Block{}, err
	}

	return s.GetBlock(string(hash))
}

// =============================================================================

// GetUnclaimed returns the unclaimed record with the specified hash.
func (s *Storage) GetUnclaimed(hash string) (database.UnclaimedTx, error) {
	var u database.UnclaimedTx
	if err := s.getJSON(UnclaimedKey(hash), &u); err != nil {
		return database.UnclaimedTx{}, err
	}

	return u, nil
}

// HasUnclaimed reports whether the unclaimed record is still spendable.
func (s *Storage) HasUnclaimed(hash string) (bool, error) {
	ok, err := s.ldb.Has(UnclaimedKey(hash), nil)
	if err != nil {
		return false, errors.Wrapf(err, "checking unclaimed %s", hash)
	}

	return ok, nil
}

// QueryUnclaimed returns the unclaimed records paid to the specified user.
// An empty user returns every record.
func (s *Storage) QueryUnclaimed(user database.AccountID) ([]database.UnclaimedTx, error) {
	iter := s.ldb.NewIterator(util.BytesPrefix([]byte(unclaimedPrefix)), nil)
	defer iter.Release()

	var records []database.UnclaimedTx
	for iter.Next() {
		var u database.UnclaimedTx
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			return nil, errors.Wrapf(err, "decoding unclaimed %s", iter.Key())
		}

		if user == "" || u.User == user {
			records = append(records, u)
		}
	}

	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterating unclaimed")
	}

	return records, nil
}

// =============================================================================

// get returns the raw value for the key.
func (s *Storage) get(key []byte) ([]byte, error) {
	data, err := s.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting %s", key)
	}

	return data, nil
}

// getJSON decodes the value for the key into v.
func (s *Storage) getJSON(key []byte, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decoding %s", key)
	}

	return nil
}
