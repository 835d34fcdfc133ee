package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pmkv/internal/fs"
)

type Config struct {
	Pool  PoolConfig  `yaml:"pool"`
	Index IndexConfig `yaml:"index"`
	Log   LogConfig   `yaml:"log"`
	HTTP  HTTPConfig  `yaml:"http"`
}

// PoolConfig 持久 pool 的位置与几何参数；几何参数只在创建 pool 时生效。
type PoolConfig struct {
	Dir         string `yaml:"dir"`
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Capacity    int    `yaml:"capacity"`
	MaxKeyLen   int    `yaml:"max_key_len"`
	MaxValueLen int    `yaml:"max_value_len"`
	UndoLogSize int64  `yaml:"undo_log_size"`
}

type IndexConfig struct {
	Buckets int `yaml:"buckets"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Dir:         ".",
			Name:        "pmkv",
			Capacity:    1024,
			MaxKeyLen:   64,
			MaxValueLen: 256,
			UndoLogSize: 64 << 10,
		},
		Index: IndexConfig{Buckets: 10},
		Log:   LogConfig{Level: "info"},
	}
}

// FromFile 读取 YAML 配置，未出现的字段保留默认值。
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// PoolPath 返回 pool 文件路径，Path 优先于 Dir/Name。
func (c *Config) PoolPath() string {
	if c.Pool.Path != "" {
		return c.Pool.Path
	}
	return fs.PoolPath(c.Pool.Dir, c.Pool.Name)
}

func (c *Config) Validate() error {
	switch {
	case c.Pool.Path == "" && c.Pool.Name == "":
		return fmt.Errorf("config: pool.path or pool.name is required")
	case c.Pool.Capacity <= 0:
		return fmt.Errorf("config: pool.capacity must be positive, got %d", c.Pool.Capacity)
	case c.Pool.MaxKeyLen <= 0 || c.Pool.MaxKeyLen > 1<<16-1:
		return fmt.Errorf("config: pool.max_key_len out of range, got %d", c.Pool.MaxKeyLen)
	case c.Pool.MaxValueLen < 0:
		return fmt.Errorf("config: pool.max_value_len must not be negative, got %d", c.Pool.MaxValueLen)
	case c.Pool.UndoLogSize <= 0:
		return fmt.Errorf("config: pool.undo_log_size must be positive, got %d", c.Pool.UndoLogSize)
	case c.Index.Buckets <= 0:
		return fmt.Errorf("config: index.buckets must be positive, got %d", c.Index.Buckets)
	}
	return nil
}
