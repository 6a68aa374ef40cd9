package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key layout. Ids are zero padded to 19 digits so lexicographic order is numeric order.
const (
	userKeyFmt         = "user:%019d"
	tradeKeyFmt        = "trade:%019d"
	tradePrefix        = "trade:"
	conversationKeyFmt = "conv:%019d"
	pairKeyFmt         = "pair:%019d:%019d"
	userConvKeyFmt     = "uconv:%019d:%019d"
	userConvPrefixFmt  = "uconv:%019d:"
	messageKeyFmt      = "msg:%019d:%019d"
	messagePrefixFmt   = "msg:%019d:"

	seekTail = "9999999999999999999"

	maxTxnAttempts = 10
)

var sequenceNames = []string{"conversation", "message", "trade", "trade_image"}

// BadgerStore implements every repository on an embedded Badger database.
type BadgerStore struct {
	db   *badger.DB
	seqs map[string]*badger.Sequence
}

// NewBadgerStore wires id sequences on top of db.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	store := &BadgerStore{db: db, seqs: make(map[string]*badger.Sequence, len(sequenceNames))}
	for _, name := range sequenceNames {
		seq, err := db.GetSequence([]byte("seq:"+name), 100)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("sequence %s: %w", name, err)
		}
		store.seqs[name] = seq
	}
	return store, nil
}

// Close releases the leased sequence ranges. The database itself is closed by its owner.
func (s *BadgerStore) Close() error {
	var errs []error
	for _, seq := range s.seqs {
		errs = append(errs, seq.Release())
	}
	return errors.Join(errs...)
}

// nextID returns a positive id; sequences start at zero.
func (s *BadgerStore) nextID(name string) (int64, error) {
	n, err := s.seqs[name].Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// update runs fn in a read-write transaction and repeats it while the commit
// loses to a concurrent writer of a key fn read. fn must be safe to rerun.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		if err = s.db.Update(fn); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxTxnAttempts, err)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), b)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanReverse visits keys under prefix from the highest to the lowest, stopping
// after limit keys when limit is positive.
func scanReverse(txn *badger.Txn, prefix string, limit int, visit func(key []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	count := 0
	for it.Seek(append([]byte(prefix), seekTail...)); it.ValidForPrefix(p); it.Next() {
		if limit > 0 && count == limit {
			break
		}
		item := it.Item()
		if err := visit(item.KeyCopy(nil), item); err != nil {
			return err
		}
		count++
	}
	return nil
}
