package kv

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dokzlo13/relayd/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// buckets returns one bucket of every implementation.
func buckets(t *testing.T) map[string]Bucket {
	return map[string]Bucket{
		"memory": NewMemoryBucket("test"),
		"sqlite": NewSQLiteBucket(openTestDB(t).DB, "test"),
	}
}

func TestBucketStoreGet(t *testing.T) {
	for name, b := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Store("ssid", "home"); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			if err := b.Store("id", uint32(42)); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			if err := b.Store("persistent", true); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			v, err := b.Get("ssid")
			if err != nil || v != "home" {
				t.Errorf("Get(ssid) = %v, %v", v, err)
			}
			v, err = b.Get("id")
			if err != nil || v != float64(42) {
				t.Errorf("Get(id) = %v (%T), %v; numbers read back as float64", v, v, err)
			}
			v, err = b.Get("persistent")
			if err != nil || v != true {
				t.Errorf("Get(persistent) = %v, %v", v, err)
			}

			v, err = b.Get("missing")
			if err != nil || v != nil {
				t.Errorf("Get(missing) = %v, %v; want nil, nil", v, err)
			}
		})
	}
}

func TestBucketDeleteKeysClear(t *testing.T) {
	for name, b := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			b.Store("a", "1")
			b.Store("b", "2")

			existed, err := b.Delete("a")
			if err != nil || !existed {
				t.Errorf("Delete(a) = %v, %v", existed, err)
			}
			existed, err = b.Delete("a")
			if err != nil || existed {
				t.Errorf("second Delete(a) = %v, %v", existed, err)
			}

			keys, err := b.Keys()
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 1 || keys[0] != "b" {
				t.Errorf("Keys() = %v, want [b]", keys)
			}

			if err := b.Clear(); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if ok, _ := b.Exists("b"); ok {
				t.Error("key survived Clear()")
			}
		})
	}
}

func TestBucketUpdateIsAtomic(t *testing.T) {
	for name, b := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			b.Store("ssid", "old")
			b.Store("token", "tok")

			boom := errors.New("boom")
			err := b.Update(func(tx Tx) error {
				if err := tx.Store("ssid", "new"); err != nil {
					return err
				}
				if err := tx.Delete("token"); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Update() error = %v, want boom", err)
			}

			if v, _ := b.Get("ssid"); v != "old" {
				t.Errorf("ssid = %v after failed update, want old", v)
			}
			if ok, _ := b.Exists("token"); !ok {
				t.Error("token deleted by failed update")
			}

			err = b.Update(func(tx Tx) error {
				if err := tx.Store("ssid", "new"); err != nil {
					return err
				}
				return tx.Delete("token")
			})
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if v, _ := b.Get("ssid"); v != "new" {
				t.Errorf("ssid = %v, want new", v)
			}
			if ok, _ := b.Exists("token"); ok {
				t.Error("token survived committed delete")
			}
		})
	}
}

func TestSQLiteBucketsAreIsolatedAndDurable(t *testing.T) {
	database := openTestDB(t)

	a := NewSQLiteBucket(database.DB, "a")
	b := NewSQLiteBucket(database.DB, "b")
	a.Store("key", "from-a")

	if v, _ := b.Get("key"); v != nil {
		t.Errorf("bucket b sees %v from bucket a", v)
	}

	reopened := NewSQLiteBucket(database.DB, "a")
	if v, _ := reopened.Get("key"); v != "from-a" {
		t.Errorf("reopened bucket Get() = %v, want from-a", v)
	}
}

func TestManagerBucket(t *testing.T) {
	database := openTestDB(t)
	m := NewManager(database.DB)

	persistent := m.Bucket("prefs", true)
	if !persistent.IsPersistent() {
		t.Error("expected SQLite bucket")
	}
	if m.Bucket("prefs", true) != persistent {
		t.Error("Bucket() should return the cached instance")
	}
	if m.Exists("prefs") {
		t.Error("empty bucket should not exist")
	}
	persistent.Store("k", "v")
	if !m.Exists("prefs") {
		t.Error("bucket with data should exist")
	}

	if NewManager(nil).Bucket("volatile", true).IsPersistent() {
		t.Error("manager without a database must fall back to memory")
	}
}
