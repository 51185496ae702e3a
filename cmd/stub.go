package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/respkit/transport"
)

var (
	// The host to listen on
	stubHost string

	// The port to listen for clients on
	stubPort int

	// NAME=RAW pairs, RAW using Go string escapes
	stubReplies []string

	stubProtocol  int
	stubListeners int
)

func init() {
	flags := StubCmd.PersistentFlags()

	flags.IntVarP(&stubPort, "port", "p", 6380, "The port to listen client connections on")
	flags.StringVarP(&stubHost, "host", "a", "127.0.0.1", "The host to listen on")
	flags.StringArrayVarP(&stubReplies, "reply", "r", nil, `Canned reply, e.g. --reply 'GET=$3\r\nbar\r\n'`)
	flags.IntVar(&stubProtocol, "protocol", 2, "The RESP version connections start with")
	flags.IntVar(&stubListeners, "listeners", 0, "Number of SO_REUSEPORT listeners, defaults to the number of CPUs")
}

var StubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a RESP server that answers from canned replies",
	Long: `Run a RESP server that answers from canned replies

PING, ECHO, HELLO and QUIT are built in. Every other command needs a canned
reply, otherwise it is answered with an error.

Usage
	respkit stub --port 6380 --reply 'GET=$3\r\nbar\r\n'

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		_, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		replies, err := parseReplies(stubReplies)
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		tcp := transport.NewTCP(transport.Options{
			Host:         stubHost,
			Port:         stubPort,
			Reuseport:    true,
			NumListeners: stubListeners,
			Replies:      replies,
			Protocol:     stubProtocol,
			Log:          log.Named("transport"),
		})

		commands := tcp.ListenToCommands()

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.String("addr", tcp.Addr().String()),
			zap.Int("replies", len(replies)))

		go func() {
			for c := range commands {
				log.Info("Command",
					zap.String("remote", c.RemoteAddr),
					zap.String("name", c.Name()),
					zap.Int("args", len(c.Args)-1))
			}
		}()

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down")

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// parseReplies turns NAME=RAW flags into the server's reply table.
func parseReplies(flags []string) (map[string][]byte, error) {
	replies := make(map[string][]byte, len(flags))

	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("Failed to parse reply '%s': expected NAME=RAW", f)
		}

		unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(raw, `"`, `\"`) + `"`)
		if err != nil {
			return nil, fmt.Errorf("Failed to parse reply '%s': %w", f, err)
		}

		replies[strings.ToUpper(name)] = []byte(unquoted)
	}

	return replies, nil
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
