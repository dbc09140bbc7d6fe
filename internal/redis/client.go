// Package redis provides the Redis client used for the alert bus.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis client with convenience methods
type Client struct {
	*redis.Client
}

// ParseRedisURL parses a redis:// or rediss:// URL and returns options
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("invalid Redis URL scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid Redis URL: missing host")
	}

	opts := &redis.Options{
		Addr: u.Host,
	}

	// Default port if not specified
	if u.Port() == "" {
		opts.Addr = u.Hostname() + ":6379"
	}

	if u.User != nil {
		opts.Username = u.User.Username()
		if pwd, ok := u.User.Password(); ok {
			opts.Password = pwd
		}
	}

	// Database from path (e.g., redis://localhost/1)
	if len(u.Path) > 1 {
		db, err := strconv.Atoi(u.Path[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid Redis database %q", u.Path[1:])
		}
		opts.DB = db
	}

	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
	}

	return opts, nil
}

// NewClient creates a new Redis client from URL and checks the connection
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// NewClientLazy creates a client without testing connection
func NewClientLazy(redisURL string) (*Client, error) {
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &Client{Client: redis.NewClient(opts)}, nil
}

// PublishJSON encodes v and publishes it on channel. It returns the number
// of subscribers that received the message.
func (c *Client) PublishJSON(ctx context.Context, channel string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}
	n, err := c.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Client.Close()
}
