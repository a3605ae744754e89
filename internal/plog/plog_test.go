package plog

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestGetFallsBackToStandardLogger(t *testing.T) {
	entry := Get(context.Background())
	if entry == nil {
		t.Fatal("expected a non-nil entry")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	want := logrus.NewEntry(logrus.New()).WithField("component", "fulfill")
	ctx := WithLogger(context.Background(), want)
	got := Get(ctx)
	if got.Data["component"] != "fulfill" {
		t.Fatalf("expected attached logger to be returned, got fields %v", got.Data)
	}
}

func TestGetResolvesContextKeys(t *testing.T) {
	type depKey struct{}
	ctx := context.WithValue(context.Background(), depKey{}, "libfoo")
	got := Get(ctx, depKey{})
	if got.Data[fmt.Sprint(depKey{})] != "libfoo" {
		t.Fatalf("expected resolved context key as a field, got %v", got.Data)
	}
}

func TestVerbosityLevels(t *testing.T) {
	cases := map[Verbosity]logrus.Level{
		VerbosityVerbose: logrus.DebugLevel,
		VerbosityDefault: logrus.InfoLevel,
		VerbosityQuiet:   logrus.WarnLevel,
		VerbositySilent:  logrus.ErrorLevel,
	}
	for v, want := range cases {
		if got := v.level(); got != want {
			t.Errorf("%s: got level %v, want %v", v, got, want)
		}
	}
}

func TestConfigureRejectsUnknownFormatter(t *testing.T) {
	_, err := Configure(context.Background(), Options{Formatter: "yaml"})
	if err == nil {
		t.Fatal("expected an error for an unsupported formatter")
	}
}
