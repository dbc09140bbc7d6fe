package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/homepanel/homepanel/internal/redis"
	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAlert(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		title   string
		args    []string
		want    types.AlertKind
		message string
		wantErr error
	}{
		{name: "message words", kind: "torrent_complete", args: []string{"ubuntu", "24.04"}, want: types.AlertTorrentComplete, message: "ubuntu 24.04"},
		{name: "upper case kind", kind: " Temperature ", args: []string{"hot"}, want: types.AlertTemperature, message: "hot"},
		{name: "empty kind is generic", kind: "", title: "Backup", want: types.AlertGeneric},
		{name: "unknown kind", kind: "disk_full", args: []string{"x"}, wantErr: alerts.ErrUnknownKind},
		{name: "no content", kind: "generic", args: []string{"  "}, wantErr: alerts.ErrEmptyAlert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, err := buildAlert(tt.kind, tt.title, tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, alert.Kind)
			assert.Equal(t, tt.message, alert.Message)
			assert.Equal(t, "cli", alert.Source)
		})
	}
}

func TestPublishAlert(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	url := "redis://" + mr.Addr()

	alert, err := buildAlert("container_down", "", []string{"jellyfin exited"})
	require.NoError(t, err)

	n, err := publishAlert(ctx, url, "homepanel:alerts", alert)
	require.NoError(t, err)
	assert.Zero(t, n, "nobody listening")

	sub, err := redis.NewClient(ctx, url)
	require.NoError(t, err)
	defer sub.Close()
	ps := sub.Subscribe(ctx, "homepanel:alerts")
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	n, err = publishAlert(ctx, url, "homepanel:alerts", alert)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"kind":"container_down"`)
	assert.Contains(t, msg.Payload, `"message":"jellyfin exited"`)

	_, err = publishAlert(ctx, "", "homepanel:alerts", alert)
	assert.ErrorContains(t, err, "REDIS_URL")
}

type fakeSystem struct{}

func (fakeSystem) GetMetrics(ctx context.Context) (*types.SystemMetrics, error) {
	return &types.SystemMetrics{Hostname: "nas"}, nil
}

type brokenTemps struct{}

func (brokenTemps) GetTemperatures(ctx context.Context) ([]types.TemperatureReading, error) {
	return nil, errors.New("no sensors")
}

func TestCollectProbes(t *testing.T) {
	set := probes.Set{System: fakeSystem{}, Temperatures: brokenTemps{}}

	out, err := collectProbes(context.Background(), set, nil)
	require.NoError(t, err)
	assert.Len(t, out, len(probeNames()))
	assert.Equal(t, "nas", out["system"].(*types.SystemMetrics).Hostname)
	assert.Equal(t, map[string]string{"error": "no sensors"}, out["temperatures"])
	assert.Equal(t, map[string]string{"error": probes.ErrDisabled.Error()}, out["torrents"])
	assert.Equal(t, map[string]string{"error": probes.ErrDisabled.Error()}, out["updates"])

	out, err = collectProbes(context.Background(), set, []string{"system"})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = collectProbes(context.Background(), set, []string{"gpu"})
	assert.ErrorContains(t, err, "unknown probe")
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abcdef0123", "2026-01-01")
	defer SetVersionInfo("dev", "none", "unknown")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version", "--short"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "1.2.3\n", buf.String())
}
