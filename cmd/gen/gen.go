package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for respkit",
	Long: `Generate documentation for respkit

Usage
	respkit gen man --dir man/

`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
