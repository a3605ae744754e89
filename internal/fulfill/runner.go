package fulfill

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
)

// Runner hands a postscript off to its interpreter, porting packman.py's
// run: a ".py" file is executed in a spawned child process, anything else
// through the OS shell.
type Runner interface {
	Run(ctx context.Context, path string, args []string) error
}

// OSRunner is the default Runner, grounded on packman.py's run/run_py_script
// split (multiprocessing.Process for ".py", subprocess.call(shell=True)
// otherwise).
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, path string, args []string) error {
	var cmd *exec.Cmd
	if strings.HasSuffix(strings.ToLower(path), ".py") {
		pyArgs := append([]string{path}, args...)
		cmd = exec.CommandContext(ctx, "python3", pyArgs...)
	} else {
		cmd = shellCommand(ctx, path, args)
	}
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return pmerrors.Wrap(pmerrors.KindScriptFailure, err, "running postscript %q", path)
		}
		return &pmerrors.Error{
			Kind:     pmerrors.KindScriptFailure,
			Message:  "postscript " + path + " exited with a non-zero status",
			ExitCode: exitErr.ExitCode(),
		}
	}
	return nil
}

var envTokenRE = regexp.MustCompile(`ENV\{([a-zA-Z0-9_.-]+)\}`)

// expandEnvToken substitutes the first "ENV{NAME}" occurrence in path with
// NAME's current environment value, porting find_env_variable's single-match
// replacement used when a literal postscript path doesn't exist on disk.
func expandEnvToken(path string) string {
	m := envTokenRE.FindStringSubmatchIndex(path)
	if m == nil {
		return path
	}
	name := path[m[2]:m[3]]
	return path[:m[0]] + os.Getenv(name) + path[m[1]:]
}

func (e *Engine) runPostscript(ctx context.Context, postscript string, args []string) error {
	if _, err := os.Stat(postscript); err != nil {
		postscript = expandEnvToken(postscript)
	}
	if _, err := os.Stat(postscript); err != nil {
		return pmerrors.New(pmerrors.KindScriptFailure, "postscript file %q not found", postscript)
	}

	runner := e.Runner
	if runner == nil {
		runner = OSRunner{}
	}
	return runner.Run(ctx, postscript, args)
}
