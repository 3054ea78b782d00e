package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zakharovvi/hec-forwarder/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept invocations over HTTP",
		Long: `serve accepts invocations as POST requests with the raw payload as the body
and replies with the invocation result as JSON.`,
		Example: `  hec-forwarder serve --listen-addr :8080
  curl --data-binary @payload.json.gz http://localhost:8080/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			if listenAddr != "" {
				a.cfg.Forward.ListenAddr = listenAddr
			}

			return a.serve(ctx, nil)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "listen address, overrides FORWARDER_LISTEN_ADDR")

	return cmd
}

// serve blocks until ctx is done or the server fails. The listener address is sent to ready when it is not nil.
func (a *app) serve(ctx context.Context, ready chan<- string) error {
	mux := http.NewServeMux()
	mux.Handle("/", a.handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := server.New(ctx, a.cfg.Forward.ListenAddr, mux, a.log)
	addr, err := srv.Start()
	if err != nil {
		return err
	}
	if ready != nil {
		ready <- addr.String()
	}

	select {
	case err := <-srv.Err():
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
