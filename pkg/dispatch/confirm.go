package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homepanel/homepanel/pkg/types"
)

// DefaultConfirmTimeout is how long a confirmation prompt stays valid
const DefaultConfirmTimeout = 60 * time.Second

var (
	// ErrNoPendingAction means nothing is waiting for confirmation
	ErrNoPendingAction = errors.New("no pending action")
	// ErrConfirmationMismatch means the token belongs to another request
	ErrConfirmationMismatch = errors.New("confirmation does not match pending action")
	// ErrConfirmationExpired means the confirmation window has passed
	ErrConfirmationExpired = errors.New("confirmation expired")
)

// confirmations holds at most one pending request per action kind
type confirmations struct {
	mu      sync.Mutex
	pending map[types.ActionKind]*types.ActionRequest
	ttl     time.Duration
	now     func() time.Time
}

func newConfirmations(ttl time.Duration, now func() time.Time) *confirmations {
	return &confirmations{
		pending: make(map[types.ActionKind]*types.ActionRequest),
		ttl:     ttl,
		now:     now,
	}
}

// request records a new pending action, replacing an older one of the
// same kind.
func (c *confirmations) request(kind types.ActionKind, issuer int64) *types.ActionRequest {
	req := &types.ActionRequest{
		ID:          uuid.NewString(),
		Kind:        kind,
		Issuer:      issuer,
		State:       types.StateRequested,
		RequestedAt: c.now(),
	}

	c.mu.Lock()
	c.pending[kind] = req
	c.mu.Unlock()

	// callers get a copy so later transitions do not race with the table
	out := *req
	return &out
}

// confirm consumes the pending request for kind if id matches and the
// window is still open.
func (c *confirmations) confirm(kind types.ActionKind, id string, issuer int64) (*types.ActionRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[kind]
	if !ok {
		return nil, ErrNoPendingAction
	}
	if req.ID != id || req.Issuer != issuer {
		return nil, ErrConfirmationMismatch
	}

	delete(c.pending, kind)
	if c.now().Sub(req.RequestedAt) >= c.ttl {
		return nil, ErrConfirmationExpired
	}

	req.State = types.StateConfirmed
	return req, nil
}

// cancel discards every pending request and returns how many there were
func (c *confirmations) cancel() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	clear(c.pending)
	return n
}

// pendingFor reports whether kind has an unexpired request
func (c *confirmations) pendingFor(kind types.ActionKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[kind]
	return ok && c.now().Sub(req.RequestedAt) < c.ttl
}
