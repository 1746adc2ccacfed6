package storage

import "errors"

// ErrNotFound 表示键不存在或已过期
var ErrNotFound = errors.New("storage: not found")
