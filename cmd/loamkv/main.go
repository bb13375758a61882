package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir      string
	configFile   string
	memtableSize int
)

// rootCmd is the base for all subcommands. Every subcommand opens the store
// at --dir (or from --config), runs one operation, and closes it again.
var rootCmd = &cobra.Command{
	Use:   "loamkv",
	Short: "A log-structured merge-tree key-value store.",
	Long: `loamkv is an embedded, single-node, ordered key-value store.
The CLI is a thin driver around the store: each invocation opens the data
directory, performs one operation, and closes it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", "data", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides --dir)")
	rootCmd.PersistentFlags().IntVar(&memtableSize, "memtable-size", 0, "memtable flush threshold in bytes (0 = default)")

	rootCmd.AddCommand(putCmd, getCmd, delCmd, scanCmd, compactCmd, statsCmd)
}
