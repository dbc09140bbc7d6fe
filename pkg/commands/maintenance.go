package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/homepanel/homepanel/pkg/types"
)

// Ensure MaintenanceExecutor implements Executor
var _ Executor = (*MaintenanceExecutor)(nil)

// MaintenanceStep is one apt-get invocation
type MaintenanceStep struct {
	Name string
	Args []string
}

var (
	// UpgradeSteps refreshes indexes and installs pending upgrades
	UpgradeSteps = []MaintenanceStep{
		{Name: "update", Args: []string{"update", "-q"}},
		{Name: "upgrade", Args: []string{"upgrade", "-y", "-q"}},
	}
	// CleanupSteps drops unused packages and the download cache
	CleanupSteps = []MaintenanceStep{
		{Name: "autoremove", Args: []string{"autoremove", "-y", "-q"}},
		{Name: "clean", Args: []string{"clean"}},
	}
	// DefaultMaintenanceSteps is an upgrade followed by a cleanup
	DefaultMaintenanceSteps = append(append([]MaintenanceStep{}, UpgradeSteps...), CleanupSteps...)
)

// MaintenanceExecutor handles MAINTENANCE, UPGRADE and CLEANUP. They differ
// only in the apt-get steps they run.
type MaintenanceExecutor struct {
	BaseExecutor
	kind   types.ActionKind
	title  string
	runner Runner
	steps  []MaintenanceStep
}

// NewMaintenanceExecutor creates the full package maintenance executor
func NewMaintenanceExecutor(runner Runner) *MaintenanceExecutor {
	return &MaintenanceExecutor{kind: types.ActionMaintenance, title: "Maintenance", runner: runner, steps: DefaultMaintenanceSteps}
}

// NewUpgradeExecutor creates the upgrade-only executor
func NewUpgradeExecutor(runner Runner) *MaintenanceExecutor {
	return &MaintenanceExecutor{kind: types.ActionUpgrade, title: "Upgrade", runner: runner, steps: UpgradeSteps}
}

// NewCleanupExecutor creates the cleanup-only executor
func NewCleanupExecutor(runner Runner) *MaintenanceExecutor {
	return &MaintenanceExecutor{kind: types.ActionCleanup, title: "Cleanup", runner: runner, steps: CleanupSteps}
}

// SupportedType returns the kind the executor was built for
func (e *MaintenanceExecutor) SupportedType() types.ActionKind {
	return e.kind
}

// Execute runs the steps in order and stops at the first failure
func (e *MaintenanceExecutor) Execute(ctx context.Context, req *types.ActionRequest) types.ActionResult {
	done := make([]string, 0, len(e.steps))
	for _, step := range e.steps {
		out, err := e.runner.Run(ctx, "apt-get", step.Args...)
		if err != nil {
			msg := fmt.Sprintf("apt-get %s failed: %v\n%s", step.Name, err, Truncate(string(out), MaxOutputBytes))
			if len(done) > 0 {
				msg = fmt.Sprintf("completed: %s\n%s", strings.Join(done, ", "), msg)
			}
			return e.Failed(req.ID, msg)
		}
		done = append(done, step.Name)
	}
	return e.Success(req.ID, fmt.Sprintf("%s complete: %s", e.title, strings.Join(done, ", ")))
}
