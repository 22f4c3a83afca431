package tabular

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps each table in a bbolt bucket. Keys are the bucket's
// sequence numbers in big-endian order so iteration follows insertion order.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Read(_ context.Context, t Table) ([]Row, error) {
	var rows []Row
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(t.Name))
		if err != nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			var r Row
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode row: %w", err)
			}
			rows = append(rows, r)
			return nil
		})
	})
	if err != nil {
		return nil, persistErr("read", t, err)
	}
	return rows, nil
}

func (s *BoltStore) AppendRow(_ context.Context, t Table, row Row) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(t.Name))
		if err != nil {
			return err
		}
		return putRow(b, project(t, row))
	})
	return persistErr("append", t, err)
}

func (s *BoltStore) Overwrite(_ context.Context, t Table, rows []Row) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		name := []byte(t.Name)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := putRow(b, project(t, r)); err != nil {
				return err
			}
		}
		return nil
	})
	return persistErr("overwrite", t, err)
}

func (s *BoltStore) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func putRow(b *bolt.Bucket, r Row) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return b.Put(key, data)
}
