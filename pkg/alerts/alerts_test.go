package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu      sync.Mutex
	replies []types.Reply
	err     error
}

func (s *fakeSender) Send(ctx context.Context, reply types.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replies = append(s.replies, reply)
	return nil
}

type recordingSink struct {
	alerts []types.Alert
}

func (s *recordingSink) Notify(ctx context.Context, source string, alert types.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

type fakeTemps struct {
	celsius float64
	err     error
}

func (f *fakeTemps) GetTemperatures(ctx context.Context) ([]types.TemperatureReading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []types.TemperatureReading{{Sensor: "coretemp_package_id_0", Celsius: f.celsius}}, nil
}

type fakeContainers struct {
	names  []string
	exited []string
	err    error
}

func (f *fakeContainers) ListContainers(ctx context.Context) ([]types.Container, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Container, 0, len(f.names))
	for _, n := range f.names {
		out = append(out, types.Container{Name: n, State: "running"})
	}
	for _, n := range f.exited {
		out = append(out, types.Container{Name: n, State: "exited", Status: "Exited (137) 1 minute ago"})
	}
	return out, nil
}

func TestNotifier_SendsToAdminChat(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 42)

	err := n.Notify(context.Background(), "hook", types.Alert{
		Kind:    types.AlertTorrentComplete,
		Message: "ubuntu-24.04.iso",
	})
	require.NoError(t, err)
	require.Len(t, sender.replies, 1)
	assert.Equal(t, int64(42), sender.replies[0].ChatID)
	assert.Zero(t, sender.replies[0].EditMessageID)
	assert.Equal(t, "✅ <b>Download complete</b>\nubuntu-24.04.iso", sender.replies[0].Text)
}

func TestNotifier_Validation(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 42)

	err := n.Notify(context.Background(), "hook", types.Alert{Kind: "bogus", Message: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = n.Notify(context.Background(), "hook", types.Alert{Kind: types.AlertGeneric, Message: "  "})
	assert.ErrorIs(t, err, ErrEmptyAlert)

	err = NewNotifier(sender, 0).Notify(context.Background(), "hook", types.Alert{Message: "x"})
	assert.Error(t, err)

	assert.Empty(t, sender.replies)
}

func TestNotifier_DefaultsToGenericKind(t *testing.T) {
	sender := &fakeSender{}
	require.NoError(t, NewNotifier(sender, 42).Notify(context.Background(), "cli", types.Alert{Message: "backup done"}))
	require.Len(t, sender.replies, 1)
	assert.True(t, strings.HasPrefix(sender.replies[0].Text, "🔔 <b>Notification</b>"))
}

func TestNotifier_RateLimit(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, 42, WithRate(0.001, 2))

	alert := types.Alert{Message: "spam"}
	require.NoError(t, n.Notify(context.Background(), "hook", alert))
	require.NoError(t, n.Notify(context.Background(), "hook", alert))
	assert.ErrorIs(t, n.Notify(context.Background(), "hook", alert), ErrRateLimited)
	assert.Len(t, sender.replies, 2)

	unlimited := NewNotifier(sender, 42, WithRate(0, 0))
	for i := 0; i < 20; i++ {
		require.NoError(t, unlimited.Notify(context.Background(), "hook", alert))
	}
}

func TestNotifier_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("bot was blocked by the user")}
	err := NewNotifier(sender, 42).Notify(context.Background(), "redis", types.Alert{Message: "x"})
	assert.ErrorContains(t, err, "bot was blocked")
}

func TestRender(t *testing.T) {
	text := Render(types.Alert{
		Kind:    types.AlertContainerDown,
		Title:   "<jellyfin>",
		Message: "exit code 137 & OOM",
		Source:  "docker-hook",
	})
	assert.Equal(t, "🐳 <b>&lt;jellyfin&gt;</b>\nexit code 137 &amp; OOM\n<i>docker-hook</i>", text)

	long := Render(types.Alert{Kind: types.AlertGeneric, Message: strings.Repeat("ж", 1000)})
	assert.True(t, utf8.ValidString(long))
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestWatchdog_InvalidSchedule(t *testing.T) {
	_, err := NewWatchdog(&recordingSink{}, WatchdogConfig{Schedule: "every now and then"})
	assert.Error(t, err)
}

func TestWatchdog_TemperatureHysteresis(t *testing.T) {
	sink := &recordingSink{}
	temps := &fakeTemps{celsius: 70}
	w, err := NewWatchdog(sink, WatchdogConfig{TempThreshold: 80, Temperatures: temps})
	require.NoError(t, err)
	assert.True(t, w.Enabled())

	ctx := context.Background()
	w.Check(ctx)
	assert.Empty(t, sink.alerts)

	temps.celsius = 85
	w.Check(ctx)
	w.Check(ctx)
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, types.AlertTemperature, sink.alerts[0].Kind)
	assert.Contains(t, sink.alerts[0].Message, "85.0°C")

	// cooling just below the threshold does not re-arm
	temps.celsius = 78
	w.Check(ctx)
	temps.celsius = 82
	w.Check(ctx)
	assert.Len(t, sink.alerts, 1)

	temps.celsius = 70
	w.Check(ctx)
	temps.celsius = 90
	w.Check(ctx)
	assert.Len(t, sink.alerts, 2)
}

func TestWatchdog_ContainerStopped(t *testing.T) {
	sink := &recordingSink{}
	containers := &fakeContainers{names: []string{"radarr", "sonarr", "db"}}
	w, err := NewWatchdog(sink, WatchdogConfig{Containers: containers})
	require.NoError(t, err)

	ctx := context.Background()
	w.Check(ctx)
	assert.Empty(t, sink.alerts, "first listing is the baseline")

	containers.err = errors.New("docker down")
	w.Check(ctx)
	assert.Empty(t, sink.alerts)

	containers.err = nil
	containers.names = []string{"radarr", "db", "jellyfin"}
	w.Check(ctx)
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, types.AlertContainerDown, sink.alerts[0].Kind)
	assert.Equal(t, "sonarr is no longer running", sink.alerts[0].Message)
	assert.Equal(t, "watchdog", sink.alerts[0].Source)

	w.Check(ctx)
	assert.Len(t, sink.alerts, 1)
}

func TestWatchdog_ExitedContainerStillListed(t *testing.T) {
	sink := &recordingSink{}
	containers := &fakeContainers{names: []string{"radarr", "db"}, exited: []string{"old-backup"}}
	w, err := NewWatchdog(sink, WatchdogConfig{Containers: containers})
	require.NoError(t, err)

	ctx := context.Background()
	w.Check(ctx)
	assert.Empty(t, sink.alerts)

	containers.names = []string{"db"}
	containers.exited = []string{"old-backup", "radarr"}
	w.Check(ctx)
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, "radarr is no longer running", sink.alerts[0].Message)
}

func TestWatchdog_Disabled(t *testing.T) {
	w, err := NewWatchdog(&recordingSink{}, WatchdogConfig{Temperatures: &fakeTemps{celsius: 99}})
	require.NoError(t, err)
	assert.False(t, w.Enabled())
}

func TestWatchdog_StartStop(t *testing.T) {
	sink := &recordingSink{}
	w, err := NewWatchdog(sink, WatchdogConfig{Schedule: "@every 1h", Containers: &fakeContainers{names: []string{"db"}}})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
