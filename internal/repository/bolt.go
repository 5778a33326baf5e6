package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/atinyakov/GophFill/internal/models"
	bolt "go.etcd.io/bbolt"
)

// bucketMatches holds one sub-bucket per origin key; keys inside are entry paths and
// values the creation time as big-endian Unix seconds.
var bucketMatches = []byte("matches")

// BoltMatchRepository stores matches in an embedded bbolt database. Every write is a
// committed transaction, so a crash cannot lose a confirmed match.
type BoltMatchRepository struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltMatchRepository opens (or creates) a bbolt database at path.
func NewBoltMatchRepository(path string) (*BoltMatchRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMatches)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create matches bucket: %w", err)
	}
	return &BoltMatchRepository{db: db, now: time.Now}, nil
}

// AddMatch associates entryPath with originKey. Adding an existing match is a no-op.
func (r *BoltMatchRepository) AddMatch(_ context.Context, originKey, entryPath string) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		origin, err := tx.Bucket(bucketMatches).CreateBucketIfNotExists([]byte(originKey))
		if err != nil {
			return err
		}
		if origin.Get([]byte(entryPath)) != nil {
			return nil
		}
		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(r.now().Unix()))
		return origin.Put([]byte(entryPath), ts)
	})
	if err != nil {
		return fmt.Errorf("AddMatch failed: %w", err)
	}
	return nil
}

// ClearMatches removes every match of originKey.
func (r *BoltMatchRepository) ClearMatches(_ context.Context, originKey string) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketMatches)
		if root.Bucket([]byte(originKey)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(originKey))
	})
	if err != nil {
		return fmt.Errorf("ClearMatches failed: %w", err)
	}
	return nil
}

// MatchesFor returns the entry paths matched to originKey in path order.
func (r *BoltMatchRepository) MatchesFor(_ context.Context, originKey string) ([]string, error) {
	paths := []string{}
	err := r.db.View(func(tx *bolt.Tx) error {
		origin := tx.Bucket(bucketMatches).Bucket([]byte(originKey))
		if origin == nil {
			return nil
		}
		return origin.ForEach(func(k, _ []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("MatchesFor: %w", err)
	}
	return paths, nil
}

// Matches returns every stored match ordered by origin key and path.
func (r *BoltMatchRepository) Matches(_ context.Context) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMatches).ForEachBucket(func(key []byte) error {
			originKey := string(key)
			return tx.Bucket(bucketMatches).Bucket(key).ForEach(func(k, v []byte) error {
				m := models.Match{OriginKey: originKey, EntryPath: string(k)}
				if len(v) == 8 {
					m.CreatedAt = time.Unix(int64(binary.BigEndian.Uint64(v)), 0).UTC()
				}
				matches = append(matches, m)
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("Matches: %w", err)
	}
	return matches, nil
}

// EntryPaths returns the distinct matched entry paths.
func (r *BoltMatchRepository) EntryPaths(ctx context.Context) ([]string, error) {
	matches, err := r.Matches(ctx)
	if err != nil {
		return nil, err
	}
	return distinctPaths(matches), nil
}

// DeleteEntryPaths removes every match pointing at one of paths in a single transaction.
func (r *BoltMatchRepository) DeleteEntryPaths(_ context.Context, paths []string) (int64, error) {
	var removed int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketMatches)
		var origins [][]byte
		if err := root.ForEachBucket(func(k []byte) error {
			origins = append(origins, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, key := range origins {
			origin := root.Bucket(key)
			for _, p := range paths {
				if origin.Get([]byte(p)) == nil {
					continue
				}
				if err := origin.Delete([]byte(p)); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteEntryPaths: %w", err)
	}
	return removed, nil
}

// Close closes the underlying bbolt database.
func (r *BoltMatchRepository) Close() error {
	return r.db.Close()
}
