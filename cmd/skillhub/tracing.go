package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/telemetry"
	"github.com/jingkaihe/skillhub/pkg/version"
)

var (
	tracer           = telemetry.Tracer("skillhub.cli")
	shutdownTracing  telemetry.ShutdownFunc
	commandSpan      trace.Span
	sensitiveFlagSet = map[string]bool{"github-token": true, "token": true}
)

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		logger.G(context.Background()).WithError(err).WithField("key", key).Fatal("failed to bind flag")
	}
}

// startTracing installs the tracer provider and opens a span covering the
// whole command.
func startTracing(cmd *cobra.Command) error {
	tc := cfg.Tracing
	tc.ServiceVersion = version.Get().Version
	shutdown, err := telemetry.InitTracer(cmd.Context(), tc)
	if err != nil {
		return err
	}
	shutdownTracing = shutdown

	attrs := []attribute.KeyValue{
		attribute.String("command.name", cmd.Name()),
		attribute.String("command.path", cmd.CommandPath()),
		attribute.Int("args.count", len(cmd.Flags().Args())),
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		if !sensitiveFlagSet[flag.Name] {
			attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
		}
	})

	ctx, span := tracer.Start(cmd.Context(), "cli.command", trace.WithAttributes(attrs...))
	commandSpan = span
	cmd.SetContext(ctx)
	return nil
}

func stopTracing(ctx context.Context) error {
	if commandSpan != nil {
		commandSpan.SetStatus(codes.Ok, "")
		commandSpan.End()
	}
	if shutdownTracing == nil {
		return nil
	}
	return shutdownTracing(ctx)
}
