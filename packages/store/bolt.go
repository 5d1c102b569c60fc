// Package store persists workbooks, either as JSON files or as JSON values
// in a bbolt database keyed by workbook id.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.alis.build/alog"
	"go.etcd.io/bbolt"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

var (
	ErrWorkbookNotFound = errors.New("workbook not found")
	ErrInvalidID        = errors.New("invalid workbook id")
)

var workbooksBucket = []byte("workbooks")

// BoltStore keeps every workbook as one value of the workbooks bucket. bbolt
// serializes writers, readers run concurrently.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path
func Open(ctx context.Context, path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(workbooksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}

	alog.Debugf(ctx, "opened workbook store %s", path)
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save stores the workbook under id, replacing any previous version
func (s *BoltStore) Save(ctx context.Context, id string, wb *spreadsheet.Workbook) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(wb)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(workbooksBucket).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("save workbook %s: %w", id, err)
	}

	alog.Debugf(ctx, "saved workbook %s (%d bytes)", id, len(data))
	return nil
}

// Load returns the workbook stored under id
func (s *BoltStore) Load(ctx context.Context, id string) (*spreadsheet.Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(workbooksBucket).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("%s: %w", id, ErrWorkbookNotFound)
		}
		// value is only valid inside the transaction
		data = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	wb, err := Decode(data)
	if err != nil {
		alog.Errorf(ctx, "workbook %s is corrupt: %v", id, err)
		return nil, fmt.Errorf("load workbook %s: %w", id, err)
	}
	return wb, nil
}

// Delete removes the workbook stored under id
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(workbooksBucket)
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%s: %w", id, ErrWorkbookNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// List returns the stored workbook ids in key order
func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(workbooksBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
