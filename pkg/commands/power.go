package commands

import (
	"context"
	"fmt"

	"github.com/homepanel/homepanel/pkg/types"
)

// Ensure PowerExecutor implements Executor
var _ Executor = (*PowerExecutor)(nil)

// PowerExecutor handles REBOOT and SHUTDOWN
type PowerExecutor struct {
	BaseExecutor
	kind    types.ActionKind
	program string
	args    []string
	runner  Runner
}

// NewRebootExecutor creates the reboot executor
func NewRebootExecutor(runner Runner) *PowerExecutor {
	return &PowerExecutor{kind: types.ActionReboot, program: "/usr/sbin/reboot", runner: runner}
}

// NewShutdownExecutor creates the shutdown executor
func NewShutdownExecutor(runner Runner) *PowerExecutor {
	return &PowerExecutor{kind: types.ActionShutdown, program: "/usr/sbin/shutdown", args: []string{"now"}, runner: runner}
}

// SupportedType returns REBOOT or SHUTDOWN
func (e *PowerExecutor) SupportedType() types.ActionKind {
	return e.kind
}

// Execute runs the power command. Success only means the command was
// accepted; the host goes down shortly after.
func (e *PowerExecutor) Execute(ctx context.Context, req *types.ActionRequest) types.ActionResult {
	out, err := e.runner.Run(ctx, e.program, e.args...)
	if err != nil {
		return e.Failed(req.ID, fmt.Sprintf("%v\n%s", err, out))
	}

	switch e.kind {
	case types.ActionReboot:
		return e.Success(req.ID, "Rebooting…")
	default:
		return e.Success(req.ID, "Shutting down…")
	}
}
