package conversion

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "conversions"

// DB defines the interface for conversion record storage
type DB interface {
	// SaveConversion creates or replaces a conversion record
	SaveConversion(c *Conversion) error

	// GetConversion retrieves a conversion by ID
	GetConversion(id string) (*Conversion, error)

	// ListConversions returns all conversions, oldest first
	ListConversions() ([]*Conversion, error)

	// DeleteConversion removes a conversion record
	DeleteConversion(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveConversion saves a conversion to the database
func (b *BoltDB) SaveConversion(c *Conversion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling conversion: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(c.ID), data)
	})
}

// GetConversion retrieves a conversion by ID
func (b *BoltDB) GetConversion(id string) (*Conversion, error) {
	var c *Conversion
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversions returns all conversions ordered by creation time
func (b *BoltDB) ListConversions() ([]*Conversion, error) {
	conversions := make([]*Conversion, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var c Conversion
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling conversion %s: %w", k, err)
			}
			conversions = append(conversions, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(conversions, func(i, j int) bool {
		return conversions[i].CreatedAt.Before(conversions[j].CreatedAt)
	})
	return conversions, nil
}

// DeleteConversion removes a conversion from the database
func (b *BoltDB) DeleteConversion(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}
