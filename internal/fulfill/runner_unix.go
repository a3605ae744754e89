//go:build !windows

package fulfill

import (
	"context"
	"os/exec"
	"strings"
)

// shellCommand runs path (plus args) through /bin/sh, mirroring
// subprocess.call(shell=True) on POSIX.
func shellCommand(ctx context.Context, path string, args []string) *exec.Cmd {
	line := append([]string{path}, args...)
	return exec.CommandContext(ctx, "/bin/sh", "-c", strings.Join(line, " "))
}
