package fulfill

import (
	"fmt"
	"io"
	"os"
)

// EnvSink receives every PM_* variable the engine produces, porting
// store_variable's dual write: into the process environment and into an
// optional variable file.
type EnvSink interface {
	Set(name, value string)
}

// NopEnvSink only sets the process environment, for callers that don't
// need a variable file (e.g. tests, or `packman run`).
type NopEnvSink struct{}

func (NopEnvSink) Set(name, value string) { os.Setenv(name, value) }

// FileEnvSink writes "name=value\n" lines to Out in addition to setting the
// process environment, the Go equivalent of pull's --var-path file.
type FileEnvSink struct {
	Out io.Writer
}

func (s FileEnvSink) Set(name, value string) {
	os.Setenv(name, value)
	if s.Out != nil {
		fmt.Fprintf(s.Out, "%s=%s\n", name, value)
	}
}
