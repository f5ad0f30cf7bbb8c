package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/config"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type app struct {
	open  func(ctx context.Context, cfg storage.Config) (storage.KV, error)
	now   func() time.Time
	store storage.Config
}

func defaultApp() *app {
	a := &app{open: storage.Open, now: time.Now}
	if cfg, err := config.LoadServer(); err == nil {
		a.store = storage.Config{
			Backend:     storage.Backend(cfg.StorageBackend),
			Dir:         cfg.DataDir,
			BadgerPath:  cfg.BadgerPath,
			DatabaseURL: cfg.DatabaseURL,
			Pool:        storage.DefaultPoolConfig(),
		}
	} else {
		a.store = storage.Config{Backend: storage.BackendFile, Dir: "./chartdesk_data/records", Pool: storage.DefaultPoolConfig()}
	}
	return a
}

// backendValue lets a flag write straight into a storage.Config.
type backendValue struct{ cfg *storage.Config }

func (v backendValue) String() string { return string(v.cfg.Backend) }
func (v backendValue) Type() string   { return "backend" }

func (v backendValue) Set(s string) error {
	b := storage.Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case storage.BackendFile, storage.BackendBadger, storage.BackendPostgres, storage.BackendMemory:
		v.cfg.Backend = b
		return nil
	}
	return fmt.Errorf("want file, badger, postgres or memory")
}

// storeFlags binds the flags selecting a record store onto cfg.
func storeFlags(fs *pflag.FlagSet, prefix string, cfg *storage.Config) {
	fs.Var(backendValue{cfg}, prefix+"storage", "record store: file, badger, postgres or memory")
	fs.StringVar(&cfg.Dir, prefix+"dir", cfg.Dir, "directory of the file store")
	fs.StringVar(&cfg.BadgerPath, prefix+"badger-path", cfg.BadgerPath, "directory of the badger store")
	fs.StringVar(&cfg.DatabaseURL, prefix+"database-url", cfg.DatabaseURL, "postgres connection string")
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chartdesk-annotations",
		Short:         "Inspect and move saved chart annotations between record stores",
		SilenceUsage: true,
	}
	storeFlags(root.PersistentFlags(), "", &a.store)

	root.AddCommand(
		newListCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newCopyCmd(a),
		newDeleteCmd(a),
	)
	return root
}

func (a *app) withStore(ctx context.Context, cfg storage.Config, fn func(kv storage.KV) error) error {
	kv, err := a.open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer kv.Close()
	return fn(kv)
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List symbols with saved annotations and their counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, a.store, func(kv storage.KV) error {
				p := overlay.NewPersister(kv)
				syms, err := p.Symbols(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, sym := range syms {
					raw, err := p.Raw(ctx, sym)
					if err != nil {
						return err
					}
					snap, err := overlay.DecodeRecord(raw)
					if err != nil {
						fmt.Fprintf(out, "%s\tmalformed: %v\n", sym, err)
						continue
					}
					fmt.Fprintf(out, "%s\t%d\n", sym, snap.Count())
				}
				return nil
			})
		},
	}
}

// readRecords returns the validated raw records of syms, or of every
// stored symbol when syms is empty.
func readRecords(ctx context.Context, kv storage.KV, syms []string) (map[string]json.RawMessage, error) {
	p := overlay.NewPersister(kv)
	if len(syms) == 0 {
		all, err := p.Symbols(ctx)
		if err != nil {
			return nil, err
		}
		syms = all
	}
	out := make(map[string]json.RawMessage, len(syms))
	for _, sym := range syms {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		raw, err := p.Raw(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		if _, err := overlay.DecodeRecord(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		out[sym] = raw
	}
	return out, nil
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export [symbol...]",
		Short: "Write saved records as one JSON object keyed by symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, a.store, func(kv storage.KV) error {
				records, err := readRecords(ctx, kv, args)
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if outPath != "" && outPath != "-" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
	return cmd
}

// saveAll writes every record through a Persister and fails on the first
// record that does not reach the store.
func (a *app) saveAll(ctx context.Context, kv storage.KV, records map[string]overlay.Snapshot) error {
	var saveErr error
	p := overlay.NewPersister(kv,
		overlay.WithPersisterClock(a.now),
		overlay.WithSaveFailureHook(func(symbol string, err error) { saveErr = fmt.Errorf("%s: %w", symbol, err) }),
	)
	syms := make([]string, 0, len(records))
	for sym := range records {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		if !p.Save(ctx, sym, records[sym]) {
			return saveErr
		}
	}
	return nil
}

func decodeAll(records map[string]json.RawMessage, reid bool, now func() time.Time) (map[string]overlay.Snapshot, error) {
	var ids *overlay.IDGenerator
	if reid {
		ids = overlay.NewIDGenerator(now)
	}
	out := make(map[string]overlay.Snapshot, len(records))
	for sym, raw := range records {
		snap, err := overlay.DecodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		if ids != nil {
			if snap, err = overlay.Reissue(snap, ids); err != nil {
				return nil, fmt.Errorf("%s: %w", sym, err)
			}
		}
		out[strings.ToUpper(strings.TrimSpace(sym))] = snap
	}
	return out, nil
}

func newImportCmd(a *app) *cobra.Command {
	var reid bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load records written by export, replacing stored ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			var records map[string]json.RawMessage
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			snaps, err := decodeAll(records, reid, a.now)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withStore(ctx, a.store, func(kv storage.KV) error {
				if err := a.saveAll(ctx, kv, snaps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", len(snaps))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reid, "reid", false, "assign fresh annotation ids")
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	var reid bool
	dst := storage.Config{Backend: storage.BackendBadger, Pool: storage.DefaultPoolConfig()}
	cmd := &cobra.Command{
		Use:   "copy [symbol...]",
		Short: "Copy records from the selected store into a destination store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var records map[string]json.RawMessage
			err := a.withStore(ctx, a.store, func(kv storage.KV) error {
				var err error
				records, err = readRecords(ctx, kv, args)
				return err
			})
			if err != nil {
				return err
			}
			snaps, err := decodeAll(records, reid, a.now)
			if err != nil {
				return err
			}
			return a.withStore(ctx, dst, func(kv storage.KV) error {
				if err := a.saveAll(ctx, kv, snaps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "copied %d records to %s\n", len(snaps), dst.Backend)
				return nil
			})
		},
	}
	storeFlags(cmd.Flags(), "to-", &dst)
	cmd.Flags().BoolVar(&reid, "reid", false, "assign fresh annotation ids")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <symbol>...",
		Short: "Delete saved records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, a.store, func(kv storage.KV) error {
				p := overlay.NewPersister(kv)
				for _, sym := range args {
					if err := p.Delete(ctx, strings.ToUpper(strings.TrimSpace(sym))); err != nil {
						return fmt.Errorf("%s: %w", sym, err)
					}
				}
				return nil
			})
		},
	}
}
