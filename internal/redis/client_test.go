package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		user     string
		password string
		db       int
		tls      bool
		wantErr  bool
	}{
		{name: "host only", url: "redis://localhost", addr: "localhost:6379"},
		{name: "port and db", url: "redis://10.0.0.5:6380/2", addr: "10.0.0.5:6380", db: 2},
		{name: "password", url: "redis://:s3cret@cache:6379", addr: "cache:6379", password: "s3cret"},
		{name: "acl user", url: "redis://bot:pw@cache", addr: "cache:6379", user: "bot", password: "pw"},
		{name: "tls", url: "rediss://redis.example.com", addr: "redis.example.com:6379", tls: true},
		{name: "empty", url: "", wantErr: true},
		{name: "wrong scheme", url: "http://localhost", wantErr: true},
		{name: "bad db", url: "redis://localhost/abc", wantErr: true},
		{name: "no host", url: "redis://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseRedisURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opts.Addr)
			assert.Equal(t, tt.user, opts.Username)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.db, opts.DB)
			assert.Equal(t, tt.tls, opts.TLSConfig != nil)
		})
	}
}

func TestNewClientAndPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	sub := client.Subscribe(ctx, "homepanel:alerts")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	n, err := client.PublishJSON(ctx, "homepanel:alerts", map[string]string{"kind": "generic", "message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"generic","message":"hi"}`, msg.Payload)
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}
