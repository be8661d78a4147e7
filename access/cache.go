package access

import (
	"encoding/json"
	"errors"
	"strconv"

	"revenueos/storage"
)

// cacheEntryKey is the single namespaced entry the whole key map lives under,
// mirroring the one-blob layout of the browser client's local storage.
const cacheEntryKey = "revenueos/keys"

// KeyCache is a device-local, advisory map from link id to derived key. It
// only exists to avoid re-prompting for a signature; a miss always falls back
// to re-derivation and its contents are never consulted for access control.
// Reads tolerate a missing or corrupt entry by treating it as empty.
type KeyCache struct {
	db storage.Database
}

// NewKeyCache wraps the supplied local database.
func NewKeyCache(db storage.Database) *KeyCache {
	return &KeyCache{db: db}
}

func (c *KeyCache) load() map[string]string {
	entries := make(map[string]string)
	if c == nil || c.db == nil {
		return entries
	}
	raw, err := c.db.Get([]byte(cacheEntryKey))
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Corrupt cache reads as empty; the next Put rewrites it whole.
		return make(map[string]string)
	}
	return entries
}

// Get returns the cached key for a link, reporting a miss when absent or
// undecodable.
func (c *KeyCache) Get(linkID uint64) (Key, bool) {
	entries := c.load()
	encoded, ok := entries[strconv.FormatUint(linkID, 10)]
	if !ok {
		return Key{}, false
	}
	key, err := ParseKey(encoded)
	if err != nil {
		return Key{}, false
	}
	return key, true
}

// Put records a derived key for later recall. Cache writes are best-effort;
// a lost update merely forces a future re-derivation.
func (c *KeyCache) Put(linkID uint64, key Key) error {
	if c == nil || c.db == nil {
		return errors.New("access: key cache not configured")
	}
	entries := c.load()
	entries[strconv.FormatUint(linkID, 10)] = key.String()
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(cacheEntryKey), raw)
}
