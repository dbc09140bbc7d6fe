package probes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/homepanel/homepanel/pkg/commands"
	"github.com/homepanel/homepanel/pkg/types"
)

// UpdatesProbe lists pending package upgrades
type UpdatesProbe interface {
	GetUpdates(ctx context.Context) (*types.UpdatesInfo, error)
}

// AptUpdatesProbe reads `apt list --upgradable`. It does not refresh the
// package indexes; the upgrade action does that.
type AptUpdatesProbe struct {
	runner commands.Runner
}

// NewAptUpdatesProbe creates an updates probe that runs apt through runner
func NewAptUpdatesProbe(runner commands.Runner) *AptUpdatesProbe {
	return &AptUpdatesProbe{runner: runner}
}

// GetUpdates returns every upgradable package
func (p *AptUpdatesProbe) GetUpdates(ctx context.Context) (*types.UpdatesInfo, error) {
	out, err := p.runner.Run(ctx, "apt", "list", "--upgradable")
	if err != nil {
		return nil, fmt.Errorf("%w: apt: %v", ErrUnavailable, err)
	}
	pkgs := parseAptUpgradable(out)
	return &types.UpdatesInfo{Count: len(pkgs), Packages: pkgs}, nil
}

// parseAptUpgradable reads lines like
//
//	bash/stable 5.2.15-2+b7 amd64 [upgradable from: 5.2.15-2+b2]
//
// skipping the "Listing..." header and apt's CLI warnings.
func parseAptUpgradable(out []byte) []types.PackageUpdate {
	var pkgs []types.PackageUpdate
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Listing") || strings.HasPrefix(line, "WARNING") {
			continue
		}
		name, rest, ok := strings.Cut(line, "/")
		if !ok || name == "" {
			continue
		}
		pkg := types.PackageUpdate{Name: name}
		if fields := strings.Fields(rest); len(fields) > 1 {
			pkg.Version = fields[1]
		}
		if _, from, ok := strings.Cut(rest, "upgradable from: "); ok {
			pkg.From = strings.TrimSuffix(strings.TrimSpace(from), "]")
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

var _ UpdatesProbe = (*AptUpdatesProbe)(nil)
