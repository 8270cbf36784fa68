package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arcology-network/unbase/config"
)

var homeDir string

// InitCmd writes a fresh config.toml at --home, for a node that hasn't
// run before.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a node's config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(homeDir, "config.toml")
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	InitCmd.Flags().StringVar(&homeDir, "home", ".", "node home directory")
	RunCmd.Flags().StringVar(&homeDir, "home", ".", "node home directory")
}
