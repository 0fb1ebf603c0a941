package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/ingest"
	"github.com/agentic-research/pvf/internal/service"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	dataRoot      string
	overridesPath string
	logLevel      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataRoot, "root", filepath.Join("pvf_data", "pvf_subjects"), "Subjects directory")
	rootCmd.PersistentFlags().StringVar(&overridesPath, "overrides", "", "HCL file of per-subject dim shifts (default <root>/dim_shifts.hcl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

var rootCmd = &cobra.Command{
	Use:           "pvf",
	Short:         "PVF: serve 4-D brain velocity fields to the viewer",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		// stdout belongs to command output (and to the MCP transport)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRoot returns the subjects filesystem and its absolute path.
func openRoot() (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", fmt.Errorf("subjects root: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("subjects root %s is not a directory", abs)
	}
	return osfs.New(abs, osfs.WithBoundOS()), abs, nil
}

func loadOverrides(root string) (ingest.Overrides, error) {
	path := overridesPath
	if path == "" {
		path = filepath.Join(root, "dim_shifts.hcl")
	}
	table, err := ingest.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("cmd: dim shift overrides", "path", path, "subjects", len(table))
	return table, nil
}

type serviceOptions struct {
	prefetchWorkers int
	frameCache      int
	publisher       service.Publisher
}

func newService(opts serviceOptions) (*service.Service, error) {
	fs, root, err := openRoot()
	if err != nil {
		return nil, err
	}
	overrides, err := loadOverrides(root)
	if err != nil {
		return nil, err
	}
	return service.New(service.Config{
		FS:              fs,
		Root:            root,
		Overrides:       overrides,
		PrefetchWorkers: opts.prefetchWorkers,
		FrameCacheSize:  opts.frameCache,
		Publisher:       opts.publisher,
	})
}
