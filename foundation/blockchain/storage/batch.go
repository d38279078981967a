package storage

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Key layout inside the key value store.
const (
	blockPrefix     = "b/"
	heightPrefix    = "n/"
	unclaimedPrefix = "u/"
	headKey         = "head"
)

// OpKind identifies the kind of mutation staged in a write batch.
type OpKind uint8

// Set of mutations a batch can hold.
const (
	OpPut OpKind = iota + 1
	OpDelete
)

// Op is a single staged mutation.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// =============================================================================

// WriteBatch accumulates mutations that are applied to storage as one
// atomic write. Batches compose: a child batch is merged into exactly one
// parent and is empty afterwards.
type WriteBatch struct {
	mu   sync.Mutex
	ops  []Op
	size int
}

// NewWriteBatch constructs an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put stages a put of the value under the key.
func (wb *WriteBatch) Put(key []byte, value []byte) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.ops = append(wb.ops, Op{Kind: OpPut, Key: key, Value: value})
	wb.size += len(key) + len(value)
}

// Delete stages a removal of the key.
func (wb *WriteBatch) Delete(key []byte) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.ops = append(wb.ops, Op{Kind: OpDelete, Key: key})
	wb.size += len(key)
}

// Merge moves every mutation of the child batch to the end of this batch.
func (wb *WriteBatch) Merge(child *WriteBatch) {
	if child == nil || child == wb {
		return
	}

	child.mu.Lock()
	ops, size := child.ops, child.size
	child.ops, child.size = nil, 0
	child.mu.Unlock()

	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.ops = append(wb.ops, ops...)
	wb.size += size
}

// Len returns the number of staged mutations.
func (wb *WriteBatch) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	return len(wb.ops)
}

// Size returns the approximate number of bytes the batch will write.
func (wb *WriteBatch) Size() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	return wb.size
}

// Ops returns a copy of the staged mutations in order.
func (wb *WriteBatch) Ops() []Op {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	ops := make([]Op, len(wb.ops))
	copy(ops, wb.ops)
	return ops
}

// =============================================================================

// PutUnclaimed stages a put of the unclaimed record under its content hash.
func (wb *WriteBatch) PutUnclaimed(u database.UnclaimedTx) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	wb.Put(UnclaimedKey(u.Key()), data)
	return nil
}

// DeleteUnclaimed stages the removal of the unclaimed record with the
// specified content hash, marking it spent.
func (wb *WriteBatch) DeleteUnclaimed(hash string) {
	wb.Delete(UnclaimedKey(hash))
}

// PutBlock stages a put of the block along with its height index entry.
func (wb *WriteBatch) PutBlock(block database.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	hash := block.Hash()
	wb.Put(BlockKey(hash), data)
	wb.Put(HeightKey(block.Header.Height), []byte(hash))
	return nil
}

// SetHead stages moving the chain head to the block with the specified hash.
func (wb *WriteBatch) SetHead(hash string) {
	wb.Put([]byte(headKey), []byte(hash))
}

// =============================================================================

// BlockKey returns the storage key for a block hash.
func BlockKey(hash string) []byte {
	return []byte(blockPrefix + hash)
}

// HeightKey returns the storage key for the height index. Heights are zero
// padded so the index iterates in chain order.
func HeightKey(height uint64) []byte {
	s := strconv.FormatUint(height, 10)
	const width = 20
	for len(s) < width {
		s = "0" + s
	}
	return []byte(heightPrefix + s)
}

// UnclaimedKey returns the storage key for an unclaimed record hash.
func UnclaimedKey(hash string) []byte {
	return []byte(unclaimedPrefix + hash)
}

// IsUnclaimedKey reports whether the key belongs to an unclaimed record.
func IsUnclaimedKey(key []byte) bool {
	return len(key) > len(unclaimedPrefix) && string(key[:len(unclaimedPrefix)]) == unclaimedPrefix
}
