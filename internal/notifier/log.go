package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobsync/internal/model"
)

var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes sync events to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, ev model.SyncEvent) error {
	args := []any{
		"outcome", ev.Outcome,
		"portal", ev.PortalName,
		"portal_job_id", ev.PortalJobID,
		"external_job_id", ev.ExternalJobID,
	}
	if ev.CanonicalJobID != 0 {
		args = append(args, "job_id", ev.CanonicalJobID)
	}
	if ev.Outcome == model.OutcomeTagFailed {
		n.logger.Warn("job not synced", append(args, "reason", ev.Message)...)
		return nil
	}
	n.logger.Info("job synced", args...)
	return nil
}
