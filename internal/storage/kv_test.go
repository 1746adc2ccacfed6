package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKVSet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.KVSet(ctx, "key1", "value1", 0); err != nil {
		t.Fatalf("KVSet failed: %v", err)
	}
	value, err := db.KVGet(ctx, "key1")
	if err != nil || value != "value1" {
		t.Errorf("KVGet = %q, %v", value, err)
	}
}

func TestKVSet_Overwrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "key1", "value1", time.Nanosecond)
	_ = db.KVSet(ctx, "key1", "value2", 0)
	time.Sleep(2 * time.Millisecond)

	// 覆盖写入同时清除旧的过期时间
	value, err := db.KVGet(ctx, "key1")
	if err != nil || value != "value2" {
		t.Errorf("KVGet = %q, %v; want value2", value, err)
	}
}

func TestKVSet_EmptyValue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "empty", "", 0)
	value, err := db.KVGet(ctx, "empty")
	if err != nil || value != "" {
		t.Errorf("KVGet = %q, %v", value, err)
	}
}

func TestKVGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.KVGet(context.Background(), "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKVGet_Expired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "expired", "value", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, err := db.KVGet(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key: err = %v, want ErrNotFound", err)
	}
	if ok, _ := db.KVExists(ctx, "expired"); ok {
		t.Error("expired key should not exist")
	}
}

func TestKVDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "del_key", "value", 0)
	if err := db.KVDelete(ctx, "del_key"); err != nil {
		t.Fatalf("KVDelete failed: %v", err)
	}
	if _, err := db.KVGet(ctx, "del_key"); !errors.Is(err, ErrNotFound) {
		t.Error("key should be deleted")
	}
	if err := db.KVDelete(ctx, "del_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestKVList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "prefix:a", "va", 0)
	_ = db.KVSet(ctx, "prefix:b", "vb", 0)
	_ = db.KVSet(ctx, "other:c", "vc", 0)
	_ = db.KVSet(ctx, "prefix:gone", "x", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	got, err := db.KVList(ctx, "prefix:")
	if err != nil {
		t.Fatalf("KVList failed: %v", err)
	}
	if len(got) != 2 || got["prefix:a"] != "va" || got["prefix:b"] != "vb" {
		t.Errorf("KVList = %v", got)
	}
}

func TestKVList_WildcardCharacters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "done:1/mod_a/ex", "1", 0)
	_ = db.KVSet(ctx, "done:1/modXa/ex", "1", 0)
	_ = db.KVSet(ctx, "done:1/mod%/ex", "1", 0)

	got, _ := db.KVList(ctx, "done:1/mod_a/")
	if len(got) != 1 {
		t.Errorf("KVList(mod_a) = %v, want exactly one key", got)
	}

	n, err := db.KVCount(ctx, "done:1/mod%")
	if err != nil {
		t.Fatalf("KVCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("KVCount(mod%%) = %d, want 1", n)
	}
}

func TestKVCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"done:a", "done:b", "done:c", "code:a"} {
		_ = db.KVSet(ctx, k, "1", 0)
	}

	n, err := db.KVCount(ctx, "done:")
	if err != nil || n != 3 {
		t.Errorf("KVCount = %d, %v; want 3", n, err)
	}
	n, _ = db.KVCount(ctx, "missing:")
	if n != 0 {
		t.Errorf("KVCount(missing) = %d, want 0", n)
	}
}

func TestKVExists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "exists", "v", 0)
	if ok, err := db.KVExists(ctx, "exists"); err != nil || !ok {
		t.Errorf("KVExists(exists) = %v, %v", ok, err)
	}
	if ok, err := db.KVExists(ctx, "missing"); err != nil || ok {
		t.Errorf("KVExists(missing) = %v, %v", ok, err)
	}
}

func TestKVCleanExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "exp1", "v", time.Millisecond)
	_ = db.KVSet(ctx, "exp2", "v", time.Millisecond)
	_ = db.KVSet(ctx, "keep", "v", 0)
	_ = db.KVSet(ctx, "later", "v", time.Hour)
	time.Sleep(5 * time.Millisecond)

	n, err := db.KVCleanExpired(ctx)
	if err != nil {
		t.Fatalf("KVCleanExpired failed: %v", err)
	}
	if n != 2 {
		t.Errorf("cleaned = %d, want 2", n)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM kv_store").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 2 {
		t.Errorf("remaining rows = %d, want 2", rows)
	}
}
