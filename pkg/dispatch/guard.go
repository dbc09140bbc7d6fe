package dispatch

import (
	"github.com/homepanel/homepanel/internal/metrics"
	"go.uber.org/zap"
)

// Guard admits events from the admin identity only. With no admin
// configured it denies everything.
type Guard struct {
	admin  int64
	logger *zap.Logger
}

// NewGuard creates a guard for the given admin id
func NewGuard(admin int64, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{admin: admin, logger: logger.Named("guard")}
}

// Allow reports whether sender may issue commands
func (g *Guard) Allow(sender int64) bool {
	if g == nil {
		return false
	}
	if g.admin > 0 && sender == g.admin {
		return true
	}

	metrics.UnauthorizedEvents.Inc()
	g.logger.Warn("unauthorized event dropped",
		zap.Int64("sender", sender),
		zap.Bool("admin_configured", g.admin > 0),
	)
	return false
}
