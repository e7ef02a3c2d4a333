package receipt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

const (
	ledgerBucket = "ledger"
	metaBucket   = "meta"
	columnsKey   = "columns"
)

// Store defines the tabular ledger the pipeline appends to and searches.
type Store interface {
	// Append durably saves a record. A nil error means the row was written.
	Append(ctx context.Context, rec ledger.Record) error

	// Search returns the rows matching q in insertion order. No match is an
	// empty, non-nil slice.
	Search(ctx context.Context, q ledger.Query) ([]ledger.SearchResult, error)

	// Close releases the backend connection
	Close() error
}

// BoltStore implements Store using BoltDB. Rows are kept in a single bucket
// keyed by a big-endian sequence so iteration follows insertion order.
type BoltStore struct {
	db         *bbolt.DB
	layout     ledger.Layout
	timeSource TimeSource
}

// NewBoltDB opens (or creates) a ledger at path. An existing ledger must
// have been written with the same column layout.
func NewBoltDB(path string, layout ledger.Layout) (*BoltStore, error) {
	return NewBoltDBWithClock(path, layout, &defaultTimeSource{})
}

// NewBoltDBWithClock is NewBoltDB with a custom time source for row
// timestamps.
func NewBoltDBWithClock(path string, layout ledger.Layout, timeSrc TimeSource) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket)); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}

		header := meta.Get([]byte(columnsKey))
		if header == nil {
			data, err := json.Marshal(layout.Columns())
			if err != nil {
				return err
			}
			return meta.Put([]byte(columnsKey), data)
		}

		var existing []string
		if err := json.Unmarshal(header, &existing); err != nil {
			return fmt.Errorf("reading column header: %w", err)
		}
		if !slices.Equal(existing, layout.Columns()) {
			return fmt.Errorf("ledger columns %v do not match layout %v", existing, layout.Columns())
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, layout: layout, timeSource: timeSrc}, nil
}

// Append writes rec as the next row, stamped with the current time.
func (b *BoltStore) Append(ctx context.Context, rec ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	row := b.layout.Row(rec.Result(b.timeSource.Now().Format(ledger.TimestampLayout)))
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating row key: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
}

// Search scans every row and keeps those matching q.
func (b *BoltStore) Search(ctx context.Context, q ledger.Query) ([]ledger.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]ledger.SearchResult, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var row []string
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("unmarshaling row %d: %w", binary.BigEndian.Uint64(k), err)
			}
			rows = append(rows, b.layout.ParseRow(row))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ledger.Filter(rows, q), nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
