package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/pvf/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve dataset tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(serviceOptions{prefetchWorkers: 2, frameCache: 8})
		if err != nil {
			return err
		}
		defer svc.Close()
		return mcpserver.ServeStdio(mcpserver.New(svc, Version))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
