package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv 覆盖 runbox 主目录的环境变量，课程仓库可以借此把数据放在仓库内
const HomeEnv = "RUNBOX_HOME"

// DefaultConfigDir 返回 runbox 主目录：$RUNBOX_HOME，未设置时为 ~/.runbox
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".runbox"), nil
}

// DefaultConfigPath 返回默认配置文件路径 (<主目录>/config.yaml)
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDataPath 返回默认数据库路径 (<主目录>/data.db)
func DefaultDataPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data.db"), nil
}

// ExpandPath 展开 $VAR / ${VAR} 环境变量以及 ~ 前缀
func ExpandPath(path string) (string, error) {
	path = os.ExpandEnv(path)

	switch {
	case path == "":
		return "", nil
	case path == "~":
		return os.UserHomeDir()
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
