package migrations

import "embed"

// FS 内嵌的迁移脚本，文件名形如 001_init.sql
//
//go:embed scripts/*.sql
var FS embed.FS
