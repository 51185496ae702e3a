package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/luma/respkit/protocol"
)

var (
	// Print the command as a quoted string rather than raw bytes
	packQuoted bool
)

func init() {
	PackCmd.Flags().BoolVarP(&packQuoted, "quoted", "q", false, "Print the encoded command as a quoted string")
}

var PackCmd = &cobra.Command{
	Use:   "pack COMMAND [ARG...]",
	Short: "Encode a command in the multi-bulk format",
	Long: `Encode a command in the multi-bulk format and write it to stdout

Usage
	respkit pack SET key value | nc localhost 6379

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		argv := make([]interface{}, len(args))
		for i, arg := range args {
			argv[i] = arg
		}

		b, err := protocol.Pack(argv...)
		if err != nil {
			return err
		}

		if packQuoted {
			_, err = cmd.OutOrStdout().Write([]byte(strconv.Quote(string(b)) + "\n"))
			return err
		}

		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}
