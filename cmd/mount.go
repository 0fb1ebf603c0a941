package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/nfsexport"
)

var (
	mountSubject string
	mountFile    string
)

func init() {
	mountCmd.Flags().StringVar(&mountSubject, "subject", "", "Subject to load before mounting")
	mountCmd.Flags().StringVar(&mountFile, "file", "", "Metadata file to load before mounting")
	mountCmd.MarkFlagsRequiredTogether("subject", "file")
	rootCmd.AddCommand(mountCmd)
}

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the slices of a dataset read-only over local NFS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]

		svc, err := newService(serviceOptions{prefetchWorkers: prefetchWorkers, frameCache: frameCache})
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if mountSubject != "" {
			p, err := svc.LoadDataset(ctx, mountSubject, mountFile)
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %s/%s: %d^3 voxels, %d time points\n", p.SubjectID, p.MetadataFile, p.Dimension, p.NumTimePoints)
		}

		srv, err := startExport(svc, "127.0.0.1:0")
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()

		fmt.Printf("Mounting pvf at %s (NFS port %d)...\n", mountPoint, srv.Port())
		if err := nfsexport.Mount(srv.Port(), mountPoint); err != nil {
			return err
		}

		<-ctx.Done()
		fmt.Printf("Unmounting %s\n", mountPoint)
		return nfsexport.Unmount(mountPoint)
	},
}
