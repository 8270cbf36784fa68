package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcology-network/unbase/cmd/unbased/commands"
)

func main() {
	root := &cobra.Command{
		Use:   "unbased",
		Short: "unbase node",
	}
	root.AddCommand(commands.VersionCmd, commands.InitCmd, commands.RunCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
