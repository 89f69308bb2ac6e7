// Package telemetry installs the OpenTelemetry providers the library
// packages log and trace through.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// NewLoggerProvider returns a provider that writes records at or above
// level to w, one JSON object per line. Records are written synchronously.
func NewLoggerProvider(w io.Writer, level string) (*sdklog.LoggerProvider, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(&severityProcessor{
			Processor: sdklog.NewSimpleProcessor(exporter),
			min:       ParseSeverity(level),
		}),
	), nil
}

// InstallLoggerProvider makes a provider from NewLoggerProvider the global
// one. The returned function flushes and shuts it down.
func InstallLoggerProvider(w io.Writer, level string) (func(context.Context) error, error) {
	provider, err := NewLoggerProvider(w, level)
	if err != nil {
		return nil, err
	}
	global.SetLoggerProvider(provider)
	return provider.Shutdown, nil
}

// ParseSeverity maps a config level name to a log severity, defaulting to
// info.
func ParseSeverity(level string) log.Severity {
	switch level {
	case "debug":
		return log.SeverityDebug
	case "warn":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	default:
		return log.SeverityInfo
	}
}

type severityProcessor struct {
	sdklog.Processor
	min log.Severity
}

func (p *severityProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	if record.Severity() < p.min {
		return nil
	}
	return p.Processor.OnEmit(ctx, record)
}
