package probes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/shirou/gopsutil/v3/host"
)

// DefaultLoginHistory is how many entries of wtmp are shown
const DefaultLoginHistory = 10

// WtmpProbe implements LoginProbe from `last` output and the utmp session
// list.
type WtmpProbe struct {
	limit int
	last  func(ctx context.Context, limit int) ([]byte, error)
	users func(ctx context.Context) ([]host.UserStat, error)
}

// NewWtmpProbe creates a login probe
func NewWtmpProbe() *WtmpProbe {
	return &WtmpProbe{
		limit: DefaultLoginHistory,
		last:  runLast,
		users: host.UsersWithContext,
	}
}

func runLast(ctx context.Context, limit int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "last", "-n", fmt.Sprint(limit), "-w")
	cmd.Env = []string{"PATH=/usr/sbin:/usr/bin:/bin", "LANG=C", "LC_ALL=C"}
	return cmd.Output()
}

// GetLogins returns recent logins and active sessions. Either half may be
// empty; the reading fails only when both sources fail.
func (p *WtmpProbe) GetLogins(ctx context.Context) (*types.LoginInfo, error) {
	info := &types.LoginInfo{}

	out, lastErr := p.last(ctx, p.limit)
	if lastErr == nil {
		info.Recent = parseLast(out, p.limit)
	}

	users, usersErr := p.users(ctx)
	if usersErr == nil {
		for _, u := range users {
			info.Active = append(info.Active, types.Session{
				User:     u.User,
				Terminal: u.Terminal,
				Host:     u.Host,
				Started:  time.Unix(int64(u.Started), 0),
			})
		}
	}

	if lastErr != nil && usersErr != nil {
		return nil, fmt.Errorf("%w: logins: %v; sessions: %v", ErrUnavailable, lastErr, usersErr)
	}
	return info, nil
}

var weekdays = map[string]bool{
	"Mon": true, "Tue": true, "Wed": true, "Thu": true, "Fri": true, "Sat": true, "Sun": true,
}

// parseLast parses `last -w` output. System pseudo-users and the trailing
// wtmp banner are skipped.
func parseLast(out []byte, limit int) []types.LoginRecord {
	var records []types.LoginRecord
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "wtmp begins") || strings.HasPrefix(line, "btmp begins") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == "reboot" || fields[0] == "shutdown" {
			continue
		}

		rec := types.LoginRecord{User: fields[0], Terminal: fields[1]}
		rest := fields[2:]
		// Local logins have no host column.
		if !weekdays[rest[0]] {
			rec.Host = rest[0]
			rest = rest[1:]
		}
		rec.When = strings.Join(rest, " ")
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records
}

var _ LoginProbe = (*WtmpProbe)(nil)
