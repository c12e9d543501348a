// Package history keeps a per-domain journal of scan cycle summaries
// in a bbolt database, so past cycles can be inspected after the fact.
package history

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
)

// Record summarizes one domain's outcome in one scan cycle.
type Record struct {
	Domain       string        `json:"domain"`
	Timestamp    time.Time     `json:"timestamp"`
	Processed    int           `json:"processed"`
	Filtered     int           `json:"filtered"`
	Changes      int           `json:"changes"`
	NewEndpoints int           `json:"new_endpoints"`
	Renames      int           `json:"renames"`
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// Journal is the scan history database. One bucket per domain, keyed
// by observation timestamp.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.NewStoreError(path, "open_journal", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append writes one record into its domain's bucket.
func (j *Journal) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(rec.Domain))
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(rec.Timestamp.Format(time.RFC3339Nano)), data)
	})
	if err != nil {
		return errors.NewStoreError(rec.Domain, "append_journal", err)
	}
	return nil
}

// Domain returns all records for one domain in chronological order.
func (j *Journal) Domain(domain string) ([]Record, error) {
	var records []Record

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(domain))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip unreadable rows
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStoreError(domain, "read_journal", err)
	}
	return records, nil
}

// Domains lists every domain with journal entries.
func (j *Journal) Domains() ([]string, error) {
	var domains []string

	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			domains = append(domains, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStoreError("", "list_journal", err)
	}
	return domains, nil
}
