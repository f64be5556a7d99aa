package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/driver/file"
	"github.com/unkn0wn-root/stash/item"
)

func args(cmd *cli.Command, min, max int) ([]string, error) {
	a := cmd.Args().Slice()
	if len(a) < min || len(a) > max {
		return nil, fmt.Errorf("%s: expected %d..%d arguments, got %d", cmd.Name, min, max, len(a))
	}
	return a, nil
}

// parseValue reads s as JSON when it is valid JSON and as a plain string
// otherwise. Integral JSON numbers become int64.
func parseValue(s string) any {
	if !json.Valid([]byte(s)) {
		return s
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return s
	}
	return normalize(v)
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, ok := item.Int64(t); ok {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = normalize(t[k])
		}
	}
	return v
}

func printValue(out io.Writer, v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(out, s)
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func putCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "store a value",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "minutes", Aliases: []string{"m"}, Usage: "lifetime; 0 stores forever"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2, 2)
			if err != nil {
				return err
			}
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				return d.Put(ctx, a[0], parseValue(a[1]), int(cmd.Int("minutes")))
			})
		},
	}
}

func getCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print a value",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1, 1)
			if err != nil {
				return err
			}
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				v, ok, err := d.Lookup(ctx, a[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("get %q: %w", a[0], stash.ErrNotFound)
				}
				return printValue(out, v)
			})
		},
	}
}

func hasCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "has",
		Usage:     "print whether a fresh value exists",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1, 1)
			if err != nil {
				return err
			}
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				_, err := fmt.Fprintln(out, d.Has(ctx, a[0]))
				return err
			})
		},
	}
}

func counterCommand(out io.Writer, name, usage string, sign int64) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "KEY [N]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1, 2)
			if err != nil {
				return err
			}
			delta := int64(1)
			if len(a) == 2 {
				if delta, err = strconv.ParseInt(a[1], 10, 64); err != nil {
					return fmt.Errorf("%s: N must be an integer: %w", name, err)
				}
			}
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				n, err := d.Increment(ctx, a[0], sign*delta)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, n)
				return err
			})
		},
	}
}

func forgetCommand() *cli.Command {
	return &cli.Command{
		Name:      "forget",
		Usage:     "remove a value",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1, 1)
			if err != nil {
				return err
			}
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				return d.Forget(ctx, a[0])
			})
		},
	}
}

func flushCommand() *cli.Command {
	return &cli.Command{
		Name:  "flush",
		Usage: "remove every value",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "redis without --prefix: empty the whole database (FLUSHDB)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withDriver(ctx, cmd, func(d stash.Driver) error {
				return d.Flush(ctx)
			})
		},
	}
}

func pruneCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "remove expired and corrupt items (file driver)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withFileDriver(ctx, cmd, func(d *file.Driver) error {
				n, err := d.Prune(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "removed %d\n", n)
				return err
			})
		},
	}
}

func lsCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "list stored items (file driver)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withFileDriver(ctx, cmd, func(d *file.Driver) error {
				entries, err := d.Entries(ctx)
				if err != nil {
					return err
				}
				now := time.Now()
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FILE\tSIZE\tCREATED\tEXPIRES")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, humanize.Bytes(uint64(e.Size)), created(e.Meta), expires(e.Meta, e.Corrupt, now))
				}
				return tw.Flush()
			})
		},
	}
}

func created(m item.Meta) string {
	if m.CreatedAt.IsZero() {
		return "-"
	}
	return humanize.Time(m.CreatedAt)
}

func expires(m item.Meta, corrupt bool, now time.Time) string {
	switch {
	case corrupt:
		return "corrupt"
	case m.ExpiresAt.IsZero():
		return "never"
	case !m.Fresh(now):
		return "expired " + humanize.Time(m.ExpiresAt)
	}
	return humanize.Time(m.ExpiresAt)
}
