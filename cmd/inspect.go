package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/dataset"
	"github.com/agentic-research/pvf/internal/ingest"
)

func init() {
	rootCmd.AddCommand(subjectsCmd, filesCmd, inspectCmd)
}

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List subject directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, _, err := openRoot()
		if err != nil {
			return err
		}
		subjects, err := ingest.ListSubjects(fs)
		if err != nil {
			return err
		}
		for _, s := range subjects {
			fmt.Println(s)
		}
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files [subject]",
	Short: "List the metadata files of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, _, err := openRoot()
		if err != nil {
			return err
		}
		files, err := ingest.ListSubjectFiles(fs, args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [subject] [metadata-file]",
	Short: "Load a dataset and print its shape, mask population and files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, root, err := openRoot()
		if err != nil {
			return err
		}
		overrides, err := loadOverrides(root)
		if err != nil {
			return err
		}
		paths, err := ingest.ResolvePaths(args[0], args[1])
		if err != nil {
			return err
		}

		ds, err := ingest.NewLoader(fs, overrides).Load(context.Background(), dataset.Identity{SubjectID: args[0], MetadataFile: args[1]})
		if err != nil {
			return err
		}

		fmt.Printf("Subject:      %s\n", ds.SubjectID)
		fmt.Printf("Metadata:     %s\n", ds.MetadataFile)
		fmt.Printf("Grid:         %d x %d x %d\n", ds.Dimension, ds.Dimension, ds.Dimension)
		fmt.Printf("Time points:  %d\n", ds.NumTimePoints)
		fmt.Printf("Mask voxels:  %s\n", humanize.Comma(int64(ds.Metadata.MaskVoxels)))
		fmt.Printf("Dim shift:    %v\n", ds.DimShift)
		fmt.Printf("Window cache: %d entries\n", len(ds.Window))

		fmt.Println("Files:")
		for _, name := range []string{paths.Metadata, paths.Vx, paths.Vy, paths.Vz, paths.CondA, paths.Patterns, paths.Pack} {
			info, err := fs.Stat(name)
			if err != nil {
				fmt.Printf("  %-48s missing\n", name)
				continue
			}
			fmt.Printf("  %-48s %s\n", name, humanize.Bytes(uint64(info.Size())))
		}
		windows, err := (&ingest.DirCorpus{FS: fs, Dir: paths.StreamlineDir}).Windows(context.Background())
		if err == nil {
			fmt.Printf("  %-48s %d windows\n", paths.StreamlineDir+"/", len(windows))
		}

		for _, w := range ds.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}
