// Package plog threads a logrus logger through a context.Context the way
// the teacher's context package attaches a Logger value, and wires the same
// formatter/reporting hooks cmd/registry/main.go configures for its server
// process onto packman's CLI process.
package plog

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// WithLogger returns a context carrying logger for retrieval by Get.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Get returns the logger attached to ctx, or the standard logger's entry if
// none was attached. Any keys given are resolved on ctx and added as fields,
// mirroring context.GetLogger(ctx, keys...) in the teacher.
func Get(ctx context.Context, keys ...interface{}) *logrus.Entry {
	var logger *logrus.Entry
	if l, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		logger = l
	} else {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	if len(keys) == 0 {
		return logger
	}

	fields := logrus.Fields{}
	for _, key := range keys {
		if v := ctx.Value(key); v != nil {
			fields[fmt.Sprint(key)] = v
		}
	}
	return logger.WithFields(fields)
}

// Verbosity mirrors the PM_VERBOSITY values from spec.md §6.
type Verbosity string

const (
	VerbosityVerbose Verbosity = "verbose"
	VerbosityDefault Verbosity = "default"
	VerbosityQuiet   Verbosity = "quiet"
	VerbositySilent  Verbosity = "silent"
)

func (v Verbosity) level() logrus.Level {
	switch v {
	case VerbosityVerbose:
		return logrus.DebugLevel
	case VerbosityQuiet:
		return logrus.WarnLevel
	case VerbositySilent:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Reporting holds the ambient crash/metrics reporting knobs from SPEC_FULL
// §A.1, config-gated exactly like the teacher's Reporting section.
type Reporting struct {
	BugsnagAPIKey        string
	BugsnagReleaseStage  string
	BugsnagEndpoint      string
	NewRelicLicenseKey   string
	NewRelicName         string
	LogstashAddr         string
}

// Options configures Configure.
type Options struct {
	Formatter string // "text", "json", or "logstash"
	Verbosity Verbosity
	Reporting Reporting
}

// Configure sets the global logrus level/formatter and attaches any
// configured hooks, then returns ctx with a logger value attached, the way
// configureLogging returns an augmented context.Context.
func Configure(ctx context.Context, opts Options) (context.Context, error) {
	logrus.SetLevel(opts.Verbosity.level())

	switch opts.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	case "logstash":
		logrus.SetFormatter(&logrus.JSONFormatter{})
		if err := addLogstashHook(opts.Reporting.LogstashAddr); err != nil {
			return ctx, err
		}
	default:
		return ctx, fmt.Errorf("unsupported logging formatter: %q", opts.Formatter)
	}

	if err := configureReporting(opts.Reporting); err != nil {
		return ctx, err
	}

	return WithLogger(ctx, logrus.NewEntry(logrus.StandardLogger())), nil
}
