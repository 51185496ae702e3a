package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luma/respkit/internal/api"
)

var (
	httpReader readerFlags

	// The host to listen on
	httpHost string

	// The port to listen for http requests on
	httpPort string

	// Overrides RESPKIT_ADDR
	httpAddr string
)

func init() {
	flags := HTTPCmd.PersistentFlags()

	httpReader.register(flags)
	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVar(&httpHost, "host", "127.0.0.1", "The host to listen on")
	flags.StringVar(&httpAddr, "addr", "", "Server /call talks to, overrides RESPKIT_ADDR")
}

var HTTPCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve the encoder and decoder over HTTP",
	Long: `Serve the encoder and decoder over HTTP

Endpoints
	GET  /ping
	POST /decode?path=   raw RESP in, JSON out
	POST /pack           {"args": [...]} in, RESP out
	POST /call           {"args": [...]} in, the server's reply as JSON out

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if httpAddr != "" {
			conf.Addr = httpAddr
		}

		opts, err := httpReader.options(conf, log)
		if err != nil {
			return err
		}

		s := &http.Server{
			Addr: net.JoinHostPort(httpHost, httpPort),
			Handler: api.NewRouter(api.Options{
				Addr:   conf.Addr,
				Reader: opts,
				Debug:  conf.DebugHTTP,
				Log:    log.Named("http"),
			}),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			log.Info("Listening",
				zap.Any("config", conf),
				zap.String("addr", s.Addr))

			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})

		g.Go(func() error {
			// Either a signal or the server failing to start.
			<-gctx.Done()

			// Restore default behavior on the interrupt signal and notify user of shutdown.
			signalStop()
			log.Info("Shutting down gracefully, press Ctrl+C again to force")

			// The context is used to inform the server it has 5 seconds to finish
			// the request it is currently handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			return s.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			log.Error("Http server errored", zap.Error(err))
			return err
		}

		log.Info("Exiting")
		return nil
	},
}
