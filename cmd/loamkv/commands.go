package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/return2faye/loamkv/pkg/kv"
)

// storeOptions resolves the flags into kv options. A config file, when
// given, supplies the base; flags fill in what it leaves unset.
func storeOptions() (kv.Options, error) {
	opts := kv.Options{Dir: dataDir, MemtableSize: memtableSize}
	if configFile != "" {
		loaded, err := kv.LoadOptions(configFile)
		if err != nil {
			return kv.Options{}, err
		}
		if loaded.Dir != "" {
			opts.Dir = loaded.Dir
		}
		if loaded.MemtableSize > 0 {
			opts.MemtableSize = loaded.MemtableSize
		}
	}
	return opts, nil
}

// withStore opens the store, runs fn, and closes it, keeping the open/close
// ceremony out of each command.
func withStore(fn func(*kv.DB) error) error {
	opts, err := storeOptions()
	if err != nil {
		return err
	}
	db, err := kv.OpenWithOptions(opts)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

var putCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Store a key-value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *kv.DB) error {
			return db.Put(args[0], args[1])
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *kv.DB) error {
			val, err := db.Get(args[0])
			if errors.Is(err, kv.ErrNotFound) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		})
	},
}

var delCmd = &cobra.Command{
	Use:   "del KEY",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *kv.DB) error {
			return db.Delete(args[0])
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan LO HI",
	Short: "List all pairs with LO <= key <= HI, in key order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *kv.DB) error {
			pairs, err := db.RangeScan(args[0], args[1])
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Key, p.Value)
			}
			return nil
		})
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Flush the write buffer and merge all tables into one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *kv.DB) error {
			return db.Compact()
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print engine metrics for the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := storeOptions()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		opts.Registerer = reg

		db, err := kv.OpenWithOptions(opts)
		if err != nil {
			return err
		}
		defer db.Close()

		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, fam := range families {
			for _, m := range fam.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", fam.GetName(), m.GetCounter().GetValue())
				case m.GetGauge() != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", fam.GetName(), m.GetGauge().GetValue())
				}
			}
		}
		return nil
	},
}
