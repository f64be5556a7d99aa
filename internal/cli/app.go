// Package cli builds the stash command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/driver/file"
	"github.com/unkn0wn-root/stash/driver/redis"
	"github.com/unkn0wn-root/stash/internal/config"
	"github.com/unkn0wn-root/stash/keys"
	stashlogrus "github.com/unkn0wn-root/stash/log/logrus"
)

// ErrFileOnly is returned by commands that inspect the storage directory
// when another driver is selected.
var ErrFileOnly = errors.New("command requires the file driver")

// NewApp builds the root command. cfg supplies flag defaults; out receives
// command output.
func NewApp(cfg config.Config, out io.Writer) *cli.Command {
	app := &cli.Command{
		Name:   "stash",
		Usage:  "inspect and modify a stash cache",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: cfg.Driver, Usage: "file or redis"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: cfg.Dir, Usage: "storage directory (file driver)"},
			&cli.StringFlag{Name: "prefix", Value: cfg.Prefix, Usage: "key prefix"},
			&cli.StringFlag{Name: "codec", Value: cfg.Codec, Usage: "msgpack, cbor, json or structpb"},
			&cli.StringFlag{Name: "hash", Value: cfg.Hash, Usage: "sha1, sha256 or xxhash"},
			&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel},
			&cli.StringFlag{Name: "redis-addr", Value: cfg.RedisAddr},
			&cli.IntFlag{Name: "redis-db", Value: cfg.RedisDB},
		},
	}
	app.Commands = []*cli.Command{
		putCommand(out),
		getCommand(out),
		hasCommand(out),
		counterCommand(out, "incr", "increment an integer item", 1),
		counterCommand(out, "decr", "decrement an integer item", -1),
		forgetCommand(),
		flushCommand(),
		pruneCommand(out),
		lsCommand(out),
	}

	// Make sure flags are sorted for the --help text.
	sort.Slice(app.Flags, func(i, j int) bool {
		return app.Flags[i].Names()[0] < app.Flags[j].Names()[0]
	})
	return app
}

func newLogger(cmd *cli.Command) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	return l, nil
}

func options(cmd *cli.Command) (stash.Options, error) {
	cd, err := codec.ByName(cmd.String("codec"))
	if err != nil {
		return stash.Options{}, err
	}
	h, ok := keys.ByName(cmd.String("hash"))
	if !ok {
		return stash.Options{}, fmt.Errorf("unknown hash %q", cmd.String("hash"))
	}
	l, err := newLogger(cmd)
	if err != nil {
		return stash.Options{}, err
	}
	return stash.Options{
		Prefix: cmd.String("prefix"),
		Codec:  cd,
		Hasher: h,
		Logger: stashlogrus.New(l),
	}, nil
}

// openDriver returns the driver selected by the global flags. The caller
// must Close it.
func openDriver(cmd *cli.Command) (stash.Driver, error) {
	opts, err := options(cmd)
	if err != nil {
		return nil, err
	}
	switch name := cmd.String("driver"); name {
	case "file":
		dir := cmd.String("dir")
		// Best-effort: pre-create the directory; the driver never does.
		_ = os.MkdirAll(dir, 0o700)
		return file.New(dir, file.Config{Options: opts, AtomicIncrement: true})
	case "redis":
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs: []string{cmd.String("redis-addr")},
			DB:    int(cmd.Int("redis-db")),
		})
		return redis.New(redis.Config{
			Options:      opts,
			Client:       rdb,
			CloseClient:  true,
			AllowFlushDB: cmd.Bool("all"),
		})
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}

// openFileDriver is openDriver restricted to the file driver. The caller
// must Close it.
func openFileDriver(cmd *cli.Command) (*file.Driver, error) {
	d, err := openDriver(cmd)
	if err != nil {
		return nil, err
	}
	fd, ok := d.(*file.Driver)
	if !ok {
		_ = d.Close(context.Background())
		return nil, ErrFileOnly
	}
	return fd, nil
}

// withDriver opens the selected driver for the duration of fn.
func withDriver(ctx context.Context, cmd *cli.Command, fn func(stash.Driver) error) (err error) {
	d, err := openDriver(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return fn(d)
}

// withFileDriver opens the file driver for the duration of fn.
func withFileDriver(ctx context.Context, cmd *cli.Command, fn func(*file.Driver) error) (err error) {
	d, err := openFileDriver(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return fn(d)
}
