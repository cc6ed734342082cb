package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const dbFileName = "feeds.db"

var (
	bodiesBucket = []byte("feed_bodies")
	metaBucket   = []byte("feed_meta")
)

// Entry is a stored copy of a fetched IOC feed
type Entry struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
	Size      int       `json:"size"`
	Body      string    `json:"-"`
}

// Age returns how long ago the entry was fetched
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// FeedCache keeps the last fetched body of each feed URL in a bbolt database
type FeedCache struct {
	db   *bolt.DB
	path string
}

// Open opens (creating if needed) the feed cache under dir
func Open(dir string) (*FeedCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := filepath.Join(dir, dbFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open feed cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bodiesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize feed cache: %w", err)
	}

	return &FeedCache{db: db, path: path}, nil
}

// Get returns the cached entry for url, or nil when there is none
func (c *FeedCache) Get(url string) (*Entry, error) {
	var entry *Entry

	err := c.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket).Get([]byte(url))
		body := tx.Bucket(bodiesBucket).Get([]byte(url))
		if meta == nil || body == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(meta, &e); err != nil {
			return fmt.Errorf("corrupt cache metadata for %s: %w", url, err)
		}
		// body is only valid inside the transaction; string() copies it
		e.Body = string(body)
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Put stores body as the latest copy of url
func (c *FeedCache) Put(url, body string, fetchedAt time.Time) error {
	meta, err := json.Marshal(Entry{
		URL:       url,
		FetchedAt: fetchedAt.UTC(),
		Size:      len(body),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bodiesBucket).Put([]byte(url), []byte(body)); err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put([]byte(url), meta)
	})
}

// Entries returns the metadata of every cached feed, without bodies
func (c *FeedCache) Entries() ([]Entry, error) {
	var entries []Entry

	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	return entries, nil
}

// Path returns the location of the database file
func (c *FeedCache) Path() string {
	return c.path
}

// Close closes the underlying database
func (c *FeedCache) Close() error {
	return c.db.Close()
}
