package probes

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/homepanel/homepanel/pkg/types"
	gnet "github.com/shirou/gopsutil/v3/net"
)

// NetProbe implements NetworkProbe with gopsutil and a public IP lookup
type NetProbe struct {
	publicIPURL string
	client      *http.Client

	interfaces func(ctx context.Context) ([]gnet.InterfaceStat, error)
	counters   func(ctx context.Context) ([]gnet.IOCountersStat, error)
}

// NewNetProbe creates a network probe. An empty publicIPURL skips the
// public address lookup.
func NewNetProbe(publicIPURL string, client *http.Client) *NetProbe {
	if client == nil {
		client = &http.Client{}
	}
	return &NetProbe{
		publicIPURL: publicIPURL,
		client:      client,
		interfaces: func(ctx context.Context) ([]gnet.InterfaceStat, error) {
			return gnet.InterfacesWithContext(ctx)
		},
		counters: func(ctx context.Context) ([]gnet.IOCountersStat, error) {
			return gnet.IOCountersWithContext(ctx, false)
		},
	}
}

// GetNetwork returns local addresses, the public IP and total byte counters.
// Only a failure to list interfaces fails the whole reading.
func (p *NetProbe) GetNetwork(ctx context.Context) (*types.NetworkInfo, error) {
	ifaces, err := p.interfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: interfaces: %v", ErrUnavailable, err)
	}

	info := &types.NetworkInfo{LocalAddrs: localAddrs(ifaces)}

	if counters, err := p.counters(ctx); err == nil && len(counters) > 0 {
		info.BytesSent = counters[0].BytesSent
		info.BytesRecv = counters[0].BytesRecv
	}

	if p.publicIPURL != "" {
		if ip, err := p.publicIP(ctx); err == nil {
			info.PublicIP = ip
		}
	}
	return info, nil
}

func localAddrs(ifaces []gnet.InterfaceStat) []types.InterfaceAddr {
	var addrs []types.InterfaceAddr
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") || !hasFlag(iface.Flags, "up") {
			continue
		}
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			addrs = append(addrs, types.InterfaceAddr{Interface: iface.Name, Addr: ip.String()})
		}
	}
	sort.SliceStable(addrs, func(i, j int) bool { return addrs[i].Interface < addrs[j].Interface })
	return addrs
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func (p *NetProbe) publicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.publicIPURL, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public ip: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 128))
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return "", fmt.Errorf("public ip: invalid response")
	}
	return ip.String(), nil
}

var _ NetworkProbe = (*NetProbe)(nil)
