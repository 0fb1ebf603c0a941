package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/ingest"
)

var packCmd = &cobra.Command{
	Use:   "pack [subject] [metadata-file]",
	Short: "Build the SQLite streamline pack of a dataset from its window files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, root, err := openRoot()
		if err != nil {
			return err
		}
		paths, err := ingest.ResolvePaths(args[0], args[1])
		if err != nil {
			return err
		}
		output := filepath.Join(root, filepath.FromSlash(paths.Pack))
		_ = os.Remove(output) // Overwrite

		start := time.Now()
		fmt.Printf("Building %s from %s...\n", output, paths.StreamlineDir)
		stats, err := ingest.WritePack(context.Background(), &ingest.DirCorpus{FS: fs, Dir: paths.StreamlineDir}, output)
		if err != nil {
			return err
		}

		size := "?"
		if info, err := os.Stat(output); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("Packed %d windows, %d entries (%d skipped), %s in %v.\n",
			stats.Windows, stats.Entries, stats.Skipped, size, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
}
