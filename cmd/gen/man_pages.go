package gen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/respkit/internal/meta"
)

var (
	manDir     string
	manSection string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for respkit",
	Long: `Generate one man page per respkit command, named after the command path
(respkit-decode.1, respkit-stub.1, ...). The directory is created when missing.`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		dir := filepath.Clean(manDir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("Failed to create %s: %w", dir, err)
		}

		info := meta.GetInfo()
		root := cmd.Root()
		root.DisableAutoGenTag = true

		header := &doc.GenManHeader{
			Section: manSection,
			Manual:  "respkit manual",
			Source:  fmt.Sprintf("respkit %s", info.Version),
		}

		if err := doc.GenManTree(root, header, dir); err != nil {
			return fmt.Errorf("Failed to write man pages to %s: %w", dir, err)
		}

		pages, err := filepath.Glob(filepath.Join(dir, "*."+manSection))
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d man pages to %s\n", len(pages), dir)
		return err
	},
}

func init() {
	flags := ManPagesCmd.PersistentFlags()

	flags.StringVar(&manDir, "dir", "man", "The directory to write the man pages to")
	flags.StringVar(&manSection, "section", "1", "The man section the pages belong to")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
