package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/control"
	"github.com/agentic-research/pvf/internal/httpapi"
	"github.com/agentic-research/pvf/internal/nfsexport"
	"github.com/agentic-research/pvf/internal/service"
)

var (
	serveAddr       string
	controlFile     string
	nfsAddr         string
	prefetchWorkers int
	frameCache      int
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":3000", "HTTP listen address (PORT env var applies when unset)")
	serveCmd.Flags().StringVar(&controlFile, "control-file", "", "Publish the active generation to this mmap'd status block")
	serveCmd.Flags().StringVar(&nfsAddr, "nfs", "", "Export slices read-only over NFS on this address, e.g. :2049")
	for _, c := range []*cobra.Command{serveCmd, mountCmd} {
		c.Flags().IntVar(&prefetchWorkers, "prefetch-workers", 4, "Concurrent streamline window reads")
		c.Flags().IntVar(&frameCache, "frame-cache", 64, "Projected time slices kept in memory (0 disables)")
	}
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the viewer HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := serveAddr
		if port := os.Getenv("PORT"); port != "" && !cmd.Flags().Changed("addr") {
			addr = ":" + port
		}

		opts := serviceOptions{prefetchWorkers: prefetchWorkers, frameCache: frameCache}
		if controlFile != "" {
			ctl, err := control.OpenOrCreate(controlFile)
			if err != nil {
				return err
			}
			defer func() { _ = ctl.Close() }()
			opts.publisher = ctl
			fmt.Printf("Publishing generations to %s\n", ctl.Path())
		}

		svc, err := newService(opts)
		if err != nil {
			return err
		}
		defer svc.Close()

		if nfsAddr != "" {
			srv, err := startExport(svc, nfsAddr)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()
			fmt.Printf("NFS export on port %d\n", srv.Port())
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Serving %s on %s\n", dataRoot, addr)
		return httpapi.New(httpapi.Config{Address: addr, Service: svc}).Start(ctx)
	},
}

func startExport(svc *service.Service, addr string) (*nfsexport.Server, error) {
	sfs, err := nfsexport.NewSliceFS(svc, frameCache)
	if err != nil {
		return nil, err
	}
	return nfsexport.NewServer(sfs, addr)
}
