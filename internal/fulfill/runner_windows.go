//go:build windows

package fulfill

import (
	"context"
	"os/exec"
	"strings"
)

// shellCommand runs path (plus args) through cmd.exe, mirroring
// subprocess.call(shell=True) on Windows.
func shellCommand(ctx context.Context, path string, args []string) *exec.Cmd {
	line := append([]string{path}, args...)
	return exec.CommandContext(ctx, "cmd", "/C", strings.Join(line, " "))
}
