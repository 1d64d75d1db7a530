package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

var (
	// Bucket names
	bucketEnvironments = []byte("environments")
	bucketRecords      = []byte("records")
	bucketState        = []byte("state")

	keyFatal = []byte("fatal")
)

// fatalState is the persisted circuit-breaker flag
type fatalState struct {
	Fatal  bool      `json:"fatal"`
	Reason string    `json:"reason"`
	SetAt  time.Time `json:"set_at"`
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the store and bootstraps both
// environment slots on first use, with blue active.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "greenlight.db")

	// The file lock times out instead of blocking forever when another
	// process (usually a running server) holds the database
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketEnvironments,
			bucketRecords,
			bucketState,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		// Bootstrap the two slots exactly once; blue starts active
		b := tx.Bucket(bucketEnvironments)
		if b.Get([]byte(types.EnvironmentBlue)) == nil {
			now := time.Now()
			slots := []*types.Environment{
				{Name: types.EnvironmentBlue, Active: true, UpdatedAt: now},
				{Name: types.EnvironmentGreen, Active: false, UpdatedAt: now},
			}
			for _, env := range slots {
				data, err := json.Marshal(env)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(env.Name), data); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Environment operations

func (s *BoltStore) GetEnvironment(name types.EnvironmentName) (*types.Environment, error) {
	var env types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *BoltStore) ListEnvironments() ([]*types.Environment, error) {
	var envs []*types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		return b.ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			envs = append(envs, &env)
			return nil
		})
	})
	return envs, err
}

func (s *BoltStore) UpdateEnvironment(name types.EnvironmentName, imageTag, revisionID string) (*types.Environment, error) {
	var env types.Environment
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}

		env.ImageTag = imageTag
		env.RevisionID = revisionID
		env.UpdatedAt = time.Now()

		updated, err := json.Marshal(&env)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), updated)
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// MarkHealthy stamps the slot's last verified-healthy time
func (s *BoltStore) MarkHealthy(name types.EnvironmentName) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		var env types.Environment
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}

		now := time.Now()
		env.LastHealthyAt = &now

		updated, err := json.Marshal(&env)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), updated)
	})
}

// SetActive flips the active flag to name inside a single transaction.
// Both rows are rewritten together so a crash can never leave both or
// neither slot active.
func (s *BoltStore) SetActive(name types.EnvironmentName) error {
	if !name.Valid() {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)

		for _, slot := range []types.EnvironmentName{types.EnvironmentBlue, types.EnvironmentGreen} {
			data := b.Get([]byte(slot))
			if data == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, slot)
			}
			var env types.Environment
			if err := json.Unmarshal(data, &env); err != nil {
				return err
			}

			env.Active = slot == name
			env.UpdatedAt = time.Now()

			updated, err := json.Marshal(&env)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(slot), updated); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ActiveEnvironment() (*types.Environment, error) {
	envs, err := s.ListEnvironments()
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if env.Active {
			return env, nil
		}
	}
	return nil, fmt.Errorf("%w: no active environment", ErrNotFound)
}

// Record operations

// AppendRecord appends rec to the deployment log. Keys are monotonic
// big-endian sequence numbers so iteration order is append order.
func (s *BoltStore) AppendRecord(rec *types.DeploymentRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// ListRecords returns the most recent records, newest first. A limit of
// 0 returns everything.
func (s *BoltStore) ListRecords(limit int) ([]*types.DeploymentRecord, error) {
	var records []*types.DeploymentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec types.DeploymentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	return records, err
}

// LastSwitchedRecord returns the most recent record with outcome
// "switched", the rollback target.
func (s *BoltStore) LastSwitchedRecord() (*types.DeploymentRecord, error) {
	var found *types.DeploymentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec types.DeploymentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Outcome == types.OutcomeSwitched {
				found = &rec
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNoSwitchedRecord
	}
	return found, nil
}

// Fatal state operations

func (s *BoltStore) Fatal() (bool, string, error) {
	var state fatalState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketState).Get(keyFatal)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &state)
	})
	return state.Fatal, state.Reason, err
}

func (s *BoltStore) SetFatal(reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(fatalState{Fatal: true, Reason: reason, SetAt: time.Now()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketState).Put(keyFatal, data)
	})
}

func (s *BoltStore) ClearFatal() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Delete(keyFatal)
	})
}
