package main

import (
	"fmt"
	"os"

	"github.com/dirchat/dirchat/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphqad",
		Short: "Dirchat graph QA server",
		Long:  "Dirchat server that answers natural-language questions against a Neo4j graph",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.GraphServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
