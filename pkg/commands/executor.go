// Package commands provides privileged action executors.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/homepanel/homepanel/internal/metrics"
	"github.com/homepanel/homepanel/pkg/types"
)

// Executor handles execution of a specific action kind
type Executor interface {
	// SupportedType returns the action kind this executor handles
	SupportedType() types.ActionKind

	// Execute runs the action and returns a result
	Execute(ctx context.Context, req *types.ActionRequest) types.ActionResult
}

// BaseExecutor provides common helper methods
type BaseExecutor struct{}

// Success creates a success result
func (e *BaseExecutor) Success(requestID, message string) types.ActionResult {
	return types.NewSuccessResult(requestID, message)
}

// Failed creates a failed result
func (e *BaseExecutor) Failed(requestID, message string) types.ActionResult {
	return types.NewFailedResult(requestID, message)
}

// Registry maps action kinds to their executors. Only allowlisted kinds
// are accepted.
type Registry struct {
	executors map[types.ActionKind]Executor
	timeout   time.Duration
	timeouts  map[types.ActionKind]time.Duration
}

// DefaultActionTimeout bounds a single action. Maintenance can take a while.
const DefaultActionTimeout = 15 * time.Minute

// NewRegistry creates a registry. Executors for kinds outside the
// allowlist are ignored.
func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{
		executors: make(map[types.ActionKind]Executor),
		timeout:   DefaultActionTimeout,
		timeouts:  make(map[types.ActionKind]time.Duration),
	}
	for _, e := range executors {
		if e == nil || !e.SupportedType().IsAllowed() {
			continue
		}
		r.executors[e.SupportedType()] = e
	}
	return r
}

// Has reports whether an executor is registered for kind
func (r *Registry) Has(kind types.ActionKind) bool {
	_, ok := r.executors[kind]
	return ok
}

// SetTimeout bounds actions of kind by d instead of DefaultActionTimeout.
// A non-positive d restores the default.
func (r *Registry) SetTimeout(kind types.ActionKind, d time.Duration) {
	if d <= 0 {
		delete(r.timeouts, kind)
		return
	}
	r.timeouts[kind] = d
}

func (r *Registry) timeoutFor(kind types.ActionKind) time.Duration {
	if d, ok := r.timeouts[kind]; ok {
		return d
	}
	return r.timeout
}

// Execute runs the request. It never retries.
func (r *Registry) Execute(ctx context.Context, req *types.ActionRequest) types.ActionResult {
	if !req.Kind.IsAllowed() {
		metrics.Actions.WithLabelValues(string(req.Kind), string(types.StatusNotAllowed)).Inc()
		return types.ActionResult{
			RequestID: req.ID,
			Status:    types.StatusNotAllowed,
			Message:   fmt.Sprintf("action %s is not allowed", req.Kind),
			Timestamp: time.Now().UnixMilli(),
		}
	}

	executor, ok := r.executors[req.Kind]
	if !ok {
		metrics.Actions.WithLabelValues(string(req.Kind), string(types.StatusNotAllowed)).Inc()
		return types.ActionResult{
			RequestID: req.ID,
			Status:    types.StatusNotAllowed,
			Message:   fmt.Sprintf("action %s is disabled", req.Kind),
			Timestamp: time.Now().UnixMilli(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeoutFor(req.Kind))
	defer cancel()

	result := executor.Execute(ctx, req)
	result.Message = Truncate(result.Message, MaxOutputBytes)
	metrics.Actions.WithLabelValues(string(req.Kind), string(result.Status)).Inc()
	return result
}
