package probes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/homepanel/homepanel/pkg/types"
)

var errForbidden = errors.New("forbidden")

// QbitClient talks to the qBittorrent Web API v2 with a cookie session. It
// serves both the torrent probe and the pause/resume actions.
type QbitClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewQbitClient creates a client. The session is established lazily. A
// positive timeout caps every HTTP exchange, including ones whose context
// carries no deadline.
func NewQbitClient(baseURL, username, password string, timeout time.Duration) *QbitClient {
	jar, _ := cookiejar.New(nil)
	return &QbitClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Jar: jar, Timeout: timeout},
	}
}

type qbitTransferInfo struct {
	DownloadSpeed int64 `json:"dl_info_speed"`
	UploadSpeed   int64 `json:"up_info_speed"`
}

type qbitTorrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

// GetStats returns torrent counts and global transfer speeds
func (c *QbitClient) GetStats(ctx context.Context) (*types.TorrentStats, error) {
	var torrents []qbitTorrent
	if err := c.getJSON(ctx, "/api/v2/torrents/info", &torrents); err != nil {
		return nil, fmt.Errorf("%w: qbittorrent: %v", ErrUnavailable, err)
	}
	var transfer qbitTransferInfo
	if err := c.getJSON(ctx, "/api/v2/transfer/info", &transfer); err != nil {
		return nil, fmt.Errorf("%w: qbittorrent: %v", ErrUnavailable, err)
	}

	stats := summarizeTorrents(torrents)
	stats.DownloadSpeed = transfer.DownloadSpeed
	stats.UploadSpeed = transfer.UploadSpeed
	return stats, nil
}

func summarizeTorrents(torrents []qbitTorrent) *types.TorrentStats {
	stats := &types.TorrentStats{Total: len(torrents)}
	for _, t := range torrents {
		switch t.State {
		case "downloading", "stalledDL", "metaDL", "forcedDL":
			stats.Downloading++
		case "uploading", "stalledUP", "queuedUP", "forcedUP":
			stats.Seeding++
		case "pausedDL", "pausedUP", "stoppedDL", "stoppedUP":
			stats.Paused++
		}
		if t.Progress >= 1 {
			stats.Completed++
		}
	}
	return stats
}

// PauseAll pauses every torrent
func (c *QbitClient) PauseAll(ctx context.Context) error {
	return c.bulk(ctx, "pause", "stop")
}

// ResumeAll resumes every torrent
func (c *QbitClient) ResumeAll(ctx context.Context) error {
	return c.bulk(ctx, "resume", "start")
}

// bulk posts hashes=all to the v4 endpoint name, falling back to the v5
// name when the server does not know it.
func (c *QbitClient) bulk(ctx context.Context, v4, v5 string) error {
	form := url.Values{"hashes": {"all"}}
	err := c.post(ctx, "/api/v2/torrents/"+v4, form)
	if errors.Is(err, errNotFound) {
		err = c.post(ctx, "/api/v2/torrents/"+v5, form)
	}
	if err != nil {
		return fmt.Errorf("qbittorrent %s: %w", v4, err)
	}
	return nil
}

func (c *QbitClient) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := url.Values{"username": {c.username}, "password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// qBittorrent rejects logins without a matching Referer when CSRF
	// protection is on.
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("login rejected: status %d", resp.StatusCode)
	}
	c.loggedIn = true
	return nil
}

// do runs a request, logging in first if needed and once more on 403
func (c *QbitClient) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	c.mu.Lock()
	loggedIn := c.loggedIn
	c.mu.Unlock()

	if !loggedIn {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusForbidden {
			return resp, nil
		}
		resp.Body.Close()
		if attempt > 0 {
			return nil, errForbidden
		}
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *QbitClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *QbitClient) post(ctx context.Context, path string, form url.Values) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

var _ TorrentProbe = (*QbitClient)(nil)
