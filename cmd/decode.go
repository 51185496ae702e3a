package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/respkit/format"
	"github.com/luma/respkit/protocol"
)

var (
	decodeReader readerFlags

	// Bytes read per Feed call
	decodeChunk int

	decodeOutput string

	// gjson path applied to every reply, implies json output
	decodePath string
)

func init() {
	flags := DecodeCmd.Flags()

	decodeReader.register(flags)
	flags.IntVar(&decodeChunk, "chunk", 4096, "Bytes fed to the decoder at a time")
	flags.StringVarP(&decodeOutput, "output", "o", string(format.StyleText), "Output style: text, json or dump")
	flags.StringVar(&decodePath, "path", "", "Print only what this gjson path selects from each reply")
}

var DecodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a stream of replies",
	Long: `Decode a stream of RESP replies read from a file or stdin

Usage
	printf '*2\r\n:1\r\n:2\r\n' | respkit decode -o json

`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		style, err := format.ParseStyle(decodeOutput)
		if err != nil {
			return err
		}

		opts, err := decodeReader.options(conf, log)
		if err != nil {
			return err
		}

		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			in = f
		}

		out := bufio.NewWriter(cmd.OutOrStdout())
		defer out.Flush()

		return decodeStream(ctx, in, decodeChunk, protocol.NewReader(opts), func(v protocol.Value) error {
			if decodePath != "" {
				res, err := format.Select(v, decodePath)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(out, res.Raw)
				return err
			}

			return format.Write(out, style, v)
		}, decodeReader.raiseErrors, log)
	},
}

// decodeStream feeds in to r chunk bytes at a time and calls emit for every
// reply, in order. Non-fatal reply errors are logged and decoding continues,
// unless failFast is set.
func decodeStream(
	ctx context.Context,
	in io.Reader,
	chunk int,
	r *protocol.Reader,
	emit func(protocol.Value) error,
	failFast bool,
	log *zap.Logger,
) error {
	if chunk < 1 {
		chunk = 1
	}

	buf := make([]byte, chunk)
	count := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := in.Read(buf)
		r.Feed(buf[:n])

		for {
			v, err := r.GetReply()
			if errors.Is(err, protocol.ErrNeedMoreData) {
				break
			}

			if errors.Is(err, protocol.ErrProtocol) {
				return fmt.Errorf("Failed to decode reply %d: %w", count, err)
			}

			if err != nil {
				if failFast {
					return fmt.Errorf("Reply %d failed: %w", count, err)
				}

				log.Warn("Reply carries an error", zap.Int("reply", count), zap.Error(err))
			}

			if err := emit(v); err != nil {
				return err
			}
			count++
		}

		if errors.Is(readErr, io.EOF) {
			if r.State() == protocol.StateMidReply || r.HasData() {
				return fmt.Errorf("Input ended inside reply %d: %w", count, protocol.ErrNeedMoreData)
			}

			log.Debug("Decoded input", zap.Int("replies", count))
			return nil
		}

		if readErr != nil {
			return readErr
		}
	}
}
