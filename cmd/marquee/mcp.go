package main

import (
	"github.com/spf13/cobra"

	marqueemcp "github.com/hyperengineering/marquee/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

Agents can then list, add and edit movies in the library directly.

Example client configuration:

  {
    "mcpServers": {
      "marquee": {
        "command": "marquee",
        "args": ["mcp"],
        "env": {
          "MARQUEE_LIBRARY": "default"
        }
      }
    }
  }

The library is opened, and migrated if needed, when the server starts and
stays open for its lifetime.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	return marqueemcp.NewServer(s, version).Run()
}
