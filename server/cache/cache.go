// Package cache memoizes finished scene results in a blob store, keyed by a
// fingerprint of the scene's content and the tuning that processed it. The
// pipeline computes identical output for identical input, so a fingerprint
// hit can skip the scene entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/server/storage"
)

// ResultCache is a key/value store of JSON documents. Implementations must
// treat a miss as normal, not an error.
type ResultCache interface {
	// Lookup fetches the document stored under key into out.
	// Returns false on a miss.
	Lookup(key string, out any) (bool, error)

	Store(key string, doc any) error
}

// Key returns the cache key for v: the hex SHA-256 of its JSON form.
// JSON field order is fixed, so equal values yield equal keys.
func Key(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:]), nil
}

// storeCache keeps cached documents in a blob store.
type storeCache struct {
	log   logs.Log
	store storage.Storage
}

func NewStorageCache(log logs.Log, store storage.Storage) ResultCache {
	return &storeCache{
		log:   logs.NewPrefixLogger(log, "cache:"),
		store: store,
	}
}

func (c *storeCache) Lookup(key string, out any) (bool, error) {
	err := storage.ReadJSON(c.store, itemName(key), out)
	if err == nil {
		return true, nil
	}
	if storage.IsNotExist(err) {
		return false, nil
	}
	if _, badJSON := err.(*json.SyntaxError); badJSON {
		// A corrupt entry is as good as absent. Evict it so the rewrite is clean.
		c.log.Warnf("Discarding corrupt cache entry %v: %v", key, err)
		c.store.DeleteFile(itemName(key))
		return false, nil
	}
	return false, err
}

func (c *storeCache) Store(key string, doc any) error {
	return storage.WriteJSON(c.store, itemName(key), doc)
}

func itemName(key string) string {
	return key + ".json"
}

// nullCache never hits and never stores.
type nullCache struct{}

func NewNullCache() ResultCache {
	return nullCache{}
}

func (nullCache) Lookup(key string, out any) (bool, error) {
	return false, nil
}

func (nullCache) Store(key string, doc any) error {
	return nil
}
