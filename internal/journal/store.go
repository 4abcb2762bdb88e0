package journal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var txBucket = []byte("transactions")

var (
	// ErrDuplicate is returned when a txid is already journaled.
	ErrDuplicate = errors.New("transaction already journaled")
	// ErrNotFound is returned by Get for an unknown txid.
	ErrNotFound = errors.New("transaction not journaled")
)

// Store is a bbolt-backed journal keyed by txid.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// NewStore opens or creates the journal at path.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(txBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Put appends rec. A txid can be journaled once.
func (s *Store) Put(rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(txBucket)
		if b.Get(rec.TxID[:]) != nil {
			return ErrDuplicate
		}
		return b.Put(rec.TxID[:], data)
	})
	if err != nil {
		return fmt.Errorf("journal %s: %w", rec.TxIDHex(), err)
	}
	s.logger.Debug("transaction journaled",
		zap.String("txid", rec.TxIDHex()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Get returns the record for txid (internal byte order), or ErrNotFound.
func (s *Store) Get(txid [32]byte) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(txBucket).Get(txid[:])
		if data == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %x: %w", txid, err)
	}
	return rec, nil
}

// List returns every record, oldest broadcast first.
func (s *Store) List() ([]*Record, error) {
	var recs []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(txBucket).ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Broadcast.Before(recs[j].Broadcast)
	})
	return recs, nil
}

// Count returns the number of journaled transactions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(txBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
