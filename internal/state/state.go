package state

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/keepsync/internal/models"
	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.keepsync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// DefaultMaxRuns caps the run history. Older runs are pruned on insert.
	DefaultMaxRuns = 500
)

var runsBucket = []byte("runs")

// State wraps a bbolt database holding the sync run history.
type State struct {
	db      *bolt.DB
	maxRuns int
}

// LoadAt opens the state database at the given path, creating it and
// its directory if they do not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, maxRuns: DefaultMaxRuns}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// RecordRun appends a run and assigns its ID. The oldest runs beyond
// the history cap are removed in the same transaction.
func (s *State) RecordRun(run models.Run) (uint64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)

		id, err := b.NextSequence()
		if err != nil {
			return err
		}

		run.ID = id

		data, err := json.Marshal(run)
		if err != nil {
			return err
		}

		if err := b.Put(runKey(id), data); err != nil {
			return err
		}

		return prune(b, s.maxRuns)
	})
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}

	return run.ID, nil
}

// Runs returns up to limit runs, newest first. A limit of zero or less
// returns the whole history.
func (s *State) Runs(limit int) ([]models.Run, error) {
	var runs []models.Run

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}

			var r models.Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decoding run %d: %w", binary.BigEndian.Uint64(k), err)
			}

			runs = append(runs, r)
		}

		return nil
	})

	return runs, err
}

// LastRun returns the most recent run, or nil if there is none.
func (s *State) LastRun() (*models.Run, error) {
	runs, err := s.Runs(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}

	return &runs[0], nil
}

// RunCount returns the number of stored runs.
func (s *State) RunCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(runsBucket).Stats().KeyN
		return nil
	})

	return count
}

// runKey encodes id big-endian so cursor order matches insertion order.
func runKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)

	return k
}

func prune(b *bolt.Bucket, keep int) error {
	if keep <= 0 {
		return nil
	}

	// Stats only sees committed pages, so count with a cursor.
	var keys [][]byte

	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	excess := len(keys) - keep
	for i := 0; i < excess; i++ {
		if err := b.Delete(keys[i]); err != nil {
			return err
		}
	}

	return nil
}
