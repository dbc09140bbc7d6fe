package commands

import (
	"context"
	"fmt"

	"github.com/homepanel/homepanel/pkg/types"
)

// Ensure TorrentExecutor implements Executor
var _ Executor = (*TorrentExecutor)(nil)

// TorrentController pauses and resumes every torrent
type TorrentController interface {
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error
}

// TorrentExecutor handles TORRENT_PAUSE and TORRENT_RESUME
type TorrentExecutor struct {
	BaseExecutor
	kind types.ActionKind
	ctrl TorrentController
}

// NewTorrentPauseExecutor creates the pause-all executor
func NewTorrentPauseExecutor(ctrl TorrentController) *TorrentExecutor {
	return &TorrentExecutor{kind: types.ActionTorrentPause, ctrl: ctrl}
}

// NewTorrentResumeExecutor creates the resume-all executor
func NewTorrentResumeExecutor(ctrl TorrentController) *TorrentExecutor {
	return &TorrentExecutor{kind: types.ActionTorrentResume, ctrl: ctrl}
}

// SupportedType returns TORRENT_PAUSE or TORRENT_RESUME
func (e *TorrentExecutor) SupportedType() types.ActionKind {
	return e.kind
}

// Execute pauses or resumes all torrents
func (e *TorrentExecutor) Execute(ctx context.Context, req *types.ActionRequest) types.ActionResult {
	if e.kind == types.ActionTorrentPause {
		if err := e.ctrl.PauseAll(ctx); err != nil {
			return e.Failed(req.ID, fmt.Sprintf("Failed to pause torrents: %v", err))
		}
		return e.Success(req.ID, "All torrents paused")
	}

	if err := e.ctrl.ResumeAll(ctx); err != nil {
		return e.Failed(req.ID, fmt.Sprintf("Failed to resume torrents: %v", err))
	}
	return e.Success(req.ID, "All torrents resumed")
}
