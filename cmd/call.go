package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/respkit/client"
	"github.com/luma/respkit/format"
	"github.com/luma/respkit/protocol"
)

var (
	callReader readerFlags

	// Overrides RESPKIT_ADDR
	callAddr string

	callOutput  string
	callTimeout time.Duration
)

func init() {
	flags := CallCmd.Flags()

	callReader.register(flags)
	flags.StringVarP(&callAddr, "addr", "a", "", "Server address, overrides RESPKIT_ADDR")
	flags.StringVarP(&callOutput, "output", "o", string(format.StyleText), "Output style: text, json or dump")
	flags.DurationVar(&callTimeout, "timeout", 5*time.Second, "How long to wait for the reply")
}

var CallCmd = &cobra.Command{
	Use:   "call COMMAND [ARG...]",
	Short: "Send one command to a server and print the reply",
	Long: `Send one command to a server and print the reply

Usage
	respkit call --addr 127.0.0.1:6379 HGETALL user:1 -o json

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if callAddr != "" {
			conf.Addr = callAddr
		}

		style, err := format.ParseStyle(callOutput)
		if err != nil {
			return err
		}

		opts, err := callReader.options(conf, log)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		conn, err := client.Dial(ctx, conf.Addr, client.Options{
			Reader: opts,
			PushHandler: func(v protocol.Value) {
				log.Info("Push message", zap.String("message", format.Text(v)))
			},
			Log: log.Named("client"),
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		argv := make([]interface{}, len(args))
		for i, arg := range args {
			argv[i] = arg
		}

		v, err := conn.Do(ctx, argv...)
		if err != nil {
			return err
		}

		return format.Write(cmd.OutOrStdout(), style, v)
	},
}
