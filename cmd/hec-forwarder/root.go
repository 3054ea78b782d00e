package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
	"github.com/zakharovvi/hec-forwarder/config"
	"github.com/zakharovvi/hec-forwarder/function"
	"github.com/zakharovvi/hec-forwarder/hec"
	"github.com/zakharovvi/hec-forwarder/payload"
	"github.com/zakharovvi/hec-forwarder/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type globalFlags struct {
	configFile string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "hec-forwarder",
		Short: "Forward streaming log records to Splunk HEC",
		Long: `hec-forwarder decodes streaming log records (gzip, base64 encoded JSON)
and posts every record as a separate event to Splunk HTTP Event Collector.

Configuration is read from SPLUNK_HEC_* and FORWARDER_* environment variables
and an optional YAML file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.LoadRuntime().InLambda() {
				return runLambda(cmd.Context(), flags)
			}

			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file, environment variables take precedence")
	cmd.PersistentFlags().IntVarP(&flags.verbosity, "verbosity", "v", 0, "log verbosity, 1 logs debug messages")

	cmd.AddCommand(
		newLambdaCmd(flags),
		newServeCmd(flags),
		newSendCmd(flags),
	)

	return cmd
}

// app holds the components shared by all sub-commands.
type app struct {
	cfg     *config.Config
	log     logr.Logger
	tp      *sdktrace.TracerProvider
	handler *function.Handler
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	stdr.SetVerbosity(flags.verbosity)
	logger := stdr.New(log.New(os.Stdout, "", log.LstdFlags))
	ctx = logr.NewContext(ctx, logger)

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		logger.Error(err, "could not load config")

		return nil, err
	}

	a := &app{cfg: cfg, log: logger}
	if cfg.Forward.TraceStdout {
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("could not create stdout trace exporter: %w", err)
		}
		a.tp = tracing.NewTracerProvider(ctx, exporter)
		otel.SetTracerProvider(a.tp)
	}

	client, err := hec.NewClient(
		ctx,
		cfg.HEC.URL,
		cfg.HEC.Token,
		hec.WithTimeout(cfg.HEC.Timeout),
		hec.WithInsecureSkipVerify(cfg.HEC.InsecureSkipVerify),
		hec.WithSource(cfg.HEC.Source),
		hec.WithSourceType(cfg.HEC.SourceType),
		hec.WithIndex(cfg.HEC.Index),
		hec.WithHost(cfg.HEC.Host),
		hec.WithChannel(cfg.HEC.Channel),
	)
	if err != nil {
		return nil, err
	}
	normalizer := payload.NewNormalizer(ctx, payload.WithMaxDecompressedBytes(cfg.Forward.MaxDecompressedBytes))
	a.handler = function.New(ctx, normalizer, client)

	return a, nil
}

func (a *app) shutdown(ctx context.Context) {
	if a.tp == nil {
		return
	}
	if err := a.tp.Shutdown(ctx); err != nil {
		a.log.Error(err, "could not shutdown tracer provider")
	}
}
