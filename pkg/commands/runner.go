package commands

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// MaxOutputBytes caps command output relayed to the chat
const MaxOutputBytes = 512

// Runner runs an external program and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs without a shell, optionally through `sudo -n`
// so a missing sudoers rule fails instead of prompting.
type ExecRunner struct {
	Sudo bool
	// Env is appended to the minimal base environment
	Env []string
}

// Run executes name with args
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append([]string{"PATH=/usr/sbin:/usr/bin:/bin", "LANG=C", "LC_ALL=C"}, r.Env...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", strings.Join(append([]string{name}, args...), " "), err)
	}
	return out.Bytes(), nil
}

// Truncate cuts s to at most n bytes on a rune boundary, keeping the tail
// where errors usually are.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	const marker = "…"
	cut := len(s) - n + len(marker)
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return marker + s[cut:]
}

var _ Runner = (*ExecRunner)(nil)
