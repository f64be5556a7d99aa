// Package config resolves CLI settings from the environment and an
// optional .env file. Flags override what is loaded here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/keys"
)

type Config struct {
	Driver    string // file | redis
	Dir       string
	Prefix    string
	Codec     string
	Hash      string
	LogLevel  string
	RedisAddr string
	RedisDB   int
}

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding variables already set, then builds a
// Config. Missing env files are ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}

	cfg := Config{
		Driver:    getEnv("STASH_DRIVER", "file"),
		Dir:       getEnv("STASH_DIR", defaultDir()),
		Prefix:    os.Getenv("STASH_PREFIX"),
		Codec:     getEnv("STASH_CODEC", "msgpack"),
		Hash:      getEnv("STASH_HASH", "sha1"),
		LogLevel:  getEnv("STASH_LOG_LEVEL", "warn"),
		RedisAddr: getEnv("STASH_REDIS_ADDR", "localhost:6379"),
	}
	db, err := getInt("STASH_REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB = db
	return cfg, cfg.Validate()
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, ok := keys.ByName(c.Hash); !ok {
		errs = append(errs, fmt.Errorf("unknown hash %q", c.Hash))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func defaultDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "stash")
	}
	return filepath.Join(os.TempDir(), "stash")
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q: not an integer", key, v)
	}
	return i, nil
}
