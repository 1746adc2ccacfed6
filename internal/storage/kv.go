package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// execer 同时由 *sql.DB 和 *sql.Tx 实现，KV 写操作可以放进事务
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// 过期时间以 Unix 毫秒保存，NULL 表示永不过期
const liveClause = "(expires_at IS NULL OR expires_at > ?)"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// KVSet 设置键值，ttl 为 0 表示永不过期
func (db *DB) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return kvSet(ctx, db.DB, key, value, ttl)
}

// KVSet 在事务中设置键值
func (tx *Tx) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return kvSet(ctx, tx.Tx, key, value, ttl)
}

func kvSet(ctx context.Context, ex execer, key, value string, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true}
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, nowMillis(),
	)
	return err
}

// KVGet 获取未过期的键值，不存在时返回 ErrNotFound
func (db *DB) KVGet(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE key = ? AND "+liveClause,
		key, nowMillis(),
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// KVDelete 删除键值，键不存在时返回 ErrNotFound
func (db *DB) KVDelete(ctx context.Context, key string) error {
	return kvDelete(ctx, db.DB, key)
}

// KVDelete 在事务中删除键值
func (tx *Tx) KVDelete(ctx context.Context, key string) error {
	return kvDelete(ctx, tx.Tx, key)
}

func kvDelete(ctx context.Context, ex execer, key string) error {
	result, err := ex.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// KVList 按前缀列出未过期的键值对
func (db *DB) KVList(ctx context.Context, prefix string) (map[string]string, error) {
	// 用 substr 比较前缀，避免 LIKE 把 _ 和 % 当作通配符
	rows, err := db.QueryContext(ctx,
		"SELECT key, value FROM kv_store WHERE substr(key, 1, length(?)) = ? AND "+liveClause,
		prefix, prefix, nowMillis(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, rows.Err()
}

// KVCount 统计前缀下未过期的键数量
func (db *DB) KVCount(ctx context.Context, prefix string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM kv_store WHERE substr(key, 1, length(?)) = ? AND "+liveClause,
		prefix, prefix, nowMillis(),
	).Scan(&n)
	return n, err
}

// KVExists 检查键是否存在且未过期
func (db *DB) KVExists(ctx context.Context, key string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM kv_store WHERE key = ? AND "+liveClause,
		key, nowMillis(),
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KVCleanExpired 删除已过期的键值对，返回删除行数
func (db *DB) KVCleanExpired(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?",
		nowMillis(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
