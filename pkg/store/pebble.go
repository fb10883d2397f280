package store

import (
	"bytes"
	"errors"
	"fmt"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"

	"github.com/cockroachdb/pebble"
)

var (
	db     *pebble.DB
	dbPath string
)

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// getRaw reads one key; missing keys surface as faults.KindNotFound.
func getRaw(key string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, faults.NotFound("key %s", key)
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

func setRaw(key string, value []byte) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

func deleteRaw(key string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// hasKey reports whether a key exists.
func hasKey(key string) (bool, error) {
	_, err := getRaw(key)
	if err == nil {
		return true, nil
	}
	if faults.Is(err, faults.KindNotFound) {
		return false, nil
	}
	return false, err
}

// scanPrefix invokes fn for every key/value under prefix, in key order.
// Returning false from fn stops the scan.
func scanPrefix(prefix string, fn func(key string, value []byte) bool) error {
	if db == nil {
		return notOpen()
	}
	pfx := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := string(iter.Key())
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return iter.Error()
}

// applyBatch writes all key/value pairs (nil value means delete) in a
// single atomic pebble batch.
func applyBatch(sets map[string][]byte) error {
	if db == nil {
		return notOpen()
	}
	wb := db.NewBatch()
	for k, v := range sets {
		if v == nil {
			if err := wb.Delete([]byte(k), nil); err != nil {
				return err
			}
			continue
		}
		if err := wb.Set([]byte(k), v, nil); err != nil {
			return err
		}
	}
	return db.Apply(wb, pebble.Sync)
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// Intended for admin/diagnostic use.
func ListKeys(prefix string) ([]string, error) {
	var out []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		out = append(out, k)
		return true
	})
	return out, err
}
