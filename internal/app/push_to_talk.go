package app

import (
	"context"
	"fmt"

	"github.com/emmett/voxtask/internal/input"
)

// RunPushToTalk toggles listening on each trigger press and forwards
// activity readings until ctx is done
func (a *VoiceApp) RunPushToTalk(ctx context.Context, trigger input.Trigger) error {
	if err := trigger.Start(ctx, a.Toggle); err != nil {
		return fmt.Errorf("failed to start trigger: %w", err)
	}
	defer trigger.Stop()

	a.logger.Info().Msg("push-to-talk ready")
	return a.Run(ctx)
}
