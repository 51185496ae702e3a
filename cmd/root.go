package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/luma/respkit/cmd/gen"
	"github.com/luma/respkit/internal/env"
	"github.com/luma/respkit/protocol"
)

var (
	// Overrides RESPKIT_LOG_LEVEL
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "respkit",
	Short: "Encode commands and decode replies of the Redis protocol",
	Long: `Encode commands and decode replies of the Redis protocol (RESP2 and RESP3)

Configuration is read from RESPKIT_* environment variables and .env.local.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides RESPKIT_LOG_LEVEL")

	RootCmd.AddCommand(DecodeCmd)
	RootCmd.AddCommand(PackCmd)
	RootCmd.AddCommand(CallCmd)
	RootCmd.AddCommand(StubCmd)
	RootCmd.AddCommand(HTTPCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

// readerFlags are the decoding options shared by the commands that read
// replies.
type readerFlags struct {
	protocol     int
	setsAsArrays bool
	encoding     string
	raiseErrors  bool
}

func (f *readerFlags) register(flags *pflag.FlagSet) {
	flags.IntVar(&f.protocol, "protocol", 0, "RESP version to decode, overrides RESPKIT_PROTOCOL")
	flags.BoolVar(&f.setsAsArrays, "sets-as-arrays", false, "Decode RESP3 sets as arrays")
	flags.StringVar(&f.encoding, "encoding", "none", "String payload handling: none, strict or replace")
	flags.BoolVar(&f.raiseErrors, "raise-errors", false, "Treat error replies as failures")
}

func (f *readerFlags) options(conf *env.Config, log *zap.Logger) (protocol.Options, error) {
	version := conf.Protocol
	if f.protocol != 0 {
		version = f.protocol
	}

	opts := protocol.Options{
		SetsAsArrays:     f.setsAsArrays,
		RaiseReplyErrors: f.raiseErrors,
		MaxBuf:           conf.MaxBuf,
		Log:              log.Named("reader"),
	}

	switch version {
	case 2:
		opts.Protocol = protocol.RESP2
	case 3:
		opts.Protocol = protocol.RESP3
	default:
		return opts, fmt.Errorf("Unsupported protocol version %d", version)
	}

	switch f.encoding {
	case "none":
		opts.Encoding = protocol.EncodingNone
	case "strict":
		opts.Encoding = protocol.EncodingUTF8Strict
	case "replace":
		opts.Encoding = protocol.EncodingUTF8Replace
	default:
		return opts, fmt.Errorf("Unknown encoding '%s'", f.encoding)
	}

	return opts, nil
}
