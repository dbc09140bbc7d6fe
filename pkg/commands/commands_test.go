package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and fails on a chosen argument
type fakeRunner struct {
	calls  []call
	failOn string
	output string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	if r.failOn != "" && len(args) > 0 && args[0] == r.failOn {
		return []byte(r.output), errors.New("exit status 100")
	}
	return []byte(r.output), nil
}

type fakeTorrents struct {
	paused, resumed int
	err             error
}

func (f *fakeTorrents) PauseAll(ctx context.Context) error {
	f.paused++
	return f.err
}

func (f *fakeTorrents) ResumeAll(ctx context.Context) error {
	f.resumed++
	return f.err
}

func request(kind types.ActionKind) *types.ActionRequest {
	return &types.ActionRequest{ID: "req-1", Kind: kind, Issuer: 42, State: types.StateExecuting}
}

func TestPowerExecutors(t *testing.T) {
	runner := &fakeRunner{}

	result := NewRebootExecutor(runner).Execute(context.Background(), request(types.ActionReboot))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "req-1", result.RequestID)

	result = NewShutdownExecutor(runner).Execute(context.Background(), request(types.ActionShutdown))
	assert.Equal(t, types.StatusSuccess, result.Status)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, call{name: "/usr/sbin/reboot"}, runner.calls[0])
	assert.Equal(t, call{name: "/usr/sbin/shutdown", args: []string{"now"}}, runner.calls[1])
}

func TestPowerExecutor_Failure(t *testing.T) {
	runner := &fakeRunner{failOn: "now", output: "sudo: a password is required"}

	result := NewShutdownExecutor(runner).Execute(context.Background(), request(types.ActionShutdown))
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "a password is required")
}

func TestMaintenanceExecutor(t *testing.T) {
	runner := &fakeRunner{}

	result := NewMaintenanceExecutor(runner).Execute(context.Background(), request(types.ActionMaintenance))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "Maintenance complete: update, upgrade, autoremove, clean", result.Message)

	require.Len(t, runner.calls, 4)
	for _, c := range runner.calls {
		assert.Equal(t, "apt-get", c.name)
	}
	assert.Equal(t, []string{"upgrade", "-y", "-q"}, runner.calls[1].args)
}

func TestMaintenanceExecutor_StopsAtFirstFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "upgrade", output: "E: dpkg was interrupted"}

	result := NewMaintenanceExecutor(runner).Execute(context.Background(), request(types.ActionMaintenance))
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "completed: update")
	assert.Contains(t, result.Message, "apt-get upgrade failed")
	assert.Contains(t, result.Message, "dpkg was interrupted")
	assert.Len(t, runner.calls, 2)
}

func TestUpgradeAndCleanupExecutors(t *testing.T) {
	runner := &fakeRunner{}

	upgrade := NewUpgradeExecutor(runner)
	assert.Equal(t, types.ActionUpgrade, upgrade.SupportedType())
	result := upgrade.Execute(context.Background(), request(types.ActionUpgrade))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "Upgrade complete: update, upgrade", result.Message)

	cleanup := NewCleanupExecutor(runner)
	assert.Equal(t, types.ActionCleanup, cleanup.SupportedType())
	result = cleanup.Execute(context.Background(), request(types.ActionCleanup))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "Cleanup complete: autoremove, clean", result.Message)

	require.Len(t, runner.calls, 4)
	assert.Equal(t, []string{"update", "-q"}, runner.calls[0].args)
	assert.Equal(t, []string{"upgrade", "-y", "-q"}, runner.calls[1].args)
	assert.Equal(t, []string{"autoremove", "-y", "-q"}, runner.calls[2].args)
	assert.Equal(t, []string{"clean"}, runner.calls[3].args)
}

func TestTorrentExecutors(t *testing.T) {
	ctrl := &fakeTorrents{}

	result := NewTorrentPauseExecutor(ctrl).Execute(context.Background(), request(types.ActionTorrentPause))
	assert.Equal(t, types.StatusSuccess, result.Status)
	result = NewTorrentResumeExecutor(ctrl).Execute(context.Background(), request(types.ActionTorrentResume))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, 1, ctrl.paused)
	assert.Equal(t, 1, ctrl.resumed)

	ctrl.err = errors.New("connection refused")
	result = NewTorrentPauseExecutor(ctrl).Execute(context.Background(), request(types.ActionTorrentPause))
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "connection refused")
}

func TestRegistry(t *testing.T) {
	runner := &fakeRunner{}
	registry := NewRegistry(NewRebootExecutor(runner), nil)

	assert.True(t, registry.Has(types.ActionReboot))
	assert.False(t, registry.Has(types.ActionShutdown))

	t.Run("not allowlisted", func(t *testing.T) {
		result := registry.Execute(context.Background(), request("FORMAT_DISK"))
		assert.Equal(t, types.StatusNotAllowed, result.Status)
		assert.Empty(t, runner.calls)
	})

	t.Run("no executor", func(t *testing.T) {
		result := registry.Execute(context.Background(), request(types.ActionShutdown))
		assert.Equal(t, types.StatusNotAllowed, result.Status)
		assert.Contains(t, result.Message, "disabled")
	})

	t.Run("output truncated", func(t *testing.T) {
		failing := NewRegistry(NewMaintenanceExecutor(&fakeRunner{failOn: "update", output: strings.Repeat("y", 2000)}))
		result := failing.Execute(context.Background(), request(types.ActionMaintenance))
		assert.Equal(t, types.StatusFailed, result.Status)
		assert.LessOrEqual(t, len(result.Message), MaxOutputBytes)
	})
}

// blockingTorrents waits for its context to end
type blockingTorrents struct{}

func (blockingTorrents) PauseAll(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingTorrents) ResumeAll(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegistry_PerKindTimeout(t *testing.T) {
	registry := NewRegistry(NewTorrentPauseExecutor(blockingTorrents{}), NewTorrentResumeExecutor(blockingTorrents{}))
	registry.SetTimeout(types.ActionTorrentPause, 50*time.Millisecond)

	start := time.Now()
	result := registry.Execute(context.Background(), request(types.ActionTorrentPause))
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "deadline exceeded")
	assert.Less(t, time.Since(start), 2*time.Second)

	// Other kinds keep the default bound, which only the caller can beat.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result = registry.Execute(ctx, request(types.ActionTorrentResume))
	assert.Equal(t, types.StatusFailed, result.Status)

	registry.SetTimeout(types.ActionTorrentPause, 0)
	assert.Equal(t, DefaultActionTimeout, registry.timeoutFor(types.ActionTorrentPause))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("  short\n", 512))

	long := strings.Repeat("a", 600) + "tail"
	got := Truncate(long, 100)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, "tail"))
	assert.True(t, strings.HasPrefix(got, "…"))

	multi := strings.Repeat("é", 300)
	got = Truncate(multi, 101)
	assert.LessOrEqual(t, len(got), 101)
	assert.True(t, utf8.ValidString(got))
}

func TestExecRunner(t *testing.T) {
	runner := &ExecRunner{}

	out, err := runner.Run(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	_, err = runner.Run(context.Background(), "false")
	assert.Error(t, err)
}
