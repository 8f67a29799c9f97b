package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/roach88/gridcalc/internal/queryir"
)

var (
	bucketWorkbooks = []byte("workbooks") // workbook name -> bucket of seq -> record
	bucketIDs       = []byte("ids")       // snapshot id -> workbook name 0x00 seq
)

// BoltStore keeps snapshots in a bbolt file. Each workbook has its own
// bucket keyed by big-endian seq, so cursor order is seq order.
type BoltStore struct {
	db   *bbolt.DB
	opts options
}

// boltRecord is the stored form of a snapshot.
type boltRecord struct {
	ID           string `json:"id"`
	WorkbookHash string `json:"workbookHash"`
	StateHash    string `json:"stateHash"`
	Values       string `json:"values"`
	History      string `json:"history,omitempty"`
}

// OpenBolt creates or opens a bbolt database at the given path.
func OpenBolt(path string, opts ...Option) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketWorkbooks, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func seqKey(seq int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(seq))
	return k
}

func idEntry(workbook string, seq int64) []byte {
	return append(append([]byte(workbook), 0x00), seqKey(seq)...)
}

func decodeRecord(workbook string, k, v []byte) (Snapshot, error) {
	var rec boltRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	values, err := unmarshalValues(rec.Values)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:           rec.ID,
		Workbook:     workbook,
		Seq:          int64(binary.BigEndian.Uint64(k)),
		WorkbookHash: rec.WorkbookHash,
		StateHash:    rec.StateHash,
		Values:       values,
		History:      unmarshalHistory(rec.History),
	}, nil
}

// Save appends snap as the newest snapshot of its workbook.
// Returns the stored snapshot and whether a new record was written.
func (s *BoltStore) Save(ctx context.Context, snap Snapshot) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	snap, err := prepare(snap)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	rec := boltRecord{WorkbookHash: snap.WorkbookHash, StateHash: snap.StateHash}
	if rec.Values, err = marshalValues(snap.Values); err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	if rec.History, err = marshalHistory(snap.History); err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}

	var saved Snapshot
	inserted := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketWorkbooks).CreateBucketIfNotExists([]byte(snap.Workbook))
		if err != nil {
			return err
		}

		var seq int64 = 1
		if k, v := bucket.Cursor().Last(); k != nil {
			latest, err := decodeRecord(snap.Workbook, k, v)
			if err != nil {
				return err
			}
			if latest.StateHash == snap.StateHash && latest.WorkbookHash == snap.WorkbookHash {
				saved = latest
				return nil
			}
			seq = latest.Seq + 1
		}

		rec.ID = s.opts.newID()
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := bucket.Put(seqKey(seq), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIDs).Put([]byte(rec.ID), idEntry(snap.Workbook, seq)); err != nil {
			return err
		}
		saved, err = decodeRecord(snap.Workbook, seqKey(seq), data)
		inserted = true
		return err
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: %w", err)
	}
	return saved, inserted, nil
}

// Latest returns the newest snapshot of a workbook, or ErrNotFound.
func (s *BoltStore) Latest(ctx context.Context, workbook string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketWorkbooks).Bucket([]byte(workbook))
		if bucket == nil {
			return ErrNotFound
		}
		k, v := bucket.Cursor().Last()
		if k == nil {
			return ErrNotFound
		}
		var err error
		snap, err = decodeRecord(workbook, k, v)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot of %q: %w", workbook, err)
	}
	return snap, nil
}

// Get returns a snapshot by id, or ErrNotFound.
func (s *BoltStore) Get(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		entry := tx.Bucket(bucketIDs).Get([]byte(id))
		if len(entry) < 9 {
			return ErrNotFound
		}
		workbook, key := string(entry[:len(entry)-9]), entry[len(entry)-8:]
		bucket := tx.Bucket(bucketWorkbooks).Bucket([]byte(workbook))
		if bucket == nil {
			return ErrNotFound
		}
		v := bucket.Get(key)
		if v == nil {
			return ErrNotFound
		}
		var err error
		snap, err = decodeRecord(workbook, key, v)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns every snapshot of a workbook ordered by seq.
//
// Returns an empty slice (not nil) if the workbook has none.
func (s *BoltStore) List(ctx context.Context, workbook string) ([]Snapshot, error) {
	snaps := []Snapshot{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketWorkbooks).Bucket([]byte(workbook))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			snap, err := decodeRecord(workbook, k, v)
			if err != nil {
				return err
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Find walks the workbook's bucket in seq order and evaluates the filter
// with queryir.Match.
func (s *BoltStore) Find(ctx context.Context, q queryir.Select) ([]Snapshot, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}
	snaps := []Snapshot{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketWorkbooks).Bucket([]byte(q.Workbook))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		first, next := c.First, c.Next
		if q.Order == queryir.NewestFirst {
			first, next = c.Last, c.Prev
		}
		for k, v := first(); k != nil; k, v = next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			snap, err := decodeRecord(q.Workbook, k, v)
			if err != nil {
				return err
			}
			if !queryir.Match(q.Filter, snap.Values) {
				continue
			}
			snaps = append(snaps, snap)
			if q.Limit > 0 && len(snaps) == q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find snapshots: %w", err)
	}
	return snaps, nil
}

// Delete removes every snapshot of a workbook and reports how many were
// removed.
func (s *BoltStore) Delete(ctx context.Context, workbook string) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		workbooks := tx.Bucket(bucketWorkbooks)
		bucket := workbooks.Bucket([]byte(workbook))
		if bucket == nil {
			return nil
		}
		ids := tx.Bucket(bucketIDs)
		err := bucket.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			n++
			return ids.Delete([]byte(rec.ID))
		})
		if err != nil {
			return err
		}
		return workbooks.DeleteBucket([]byte(workbook))
	})
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return n, nil
}
