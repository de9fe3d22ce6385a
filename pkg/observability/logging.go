package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/fable/pkg/domain"
)

// LoggingHooks logs every lifecycle event. Routine events go to Debug,
// rejected choices and hidden conditions to Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "node_id", e.NodeID, "cause", string(e.Cause), "session_id", e.SessionID)
		},
		OnChoiceMade: func(ctx context.Context, e *domain.ChoiceEvent) {
			logger.InfoContext(ctx, "choice_made",
				"from", e.FromNodeID,
				"node_id", e.ToNodeID,
				"choice", e.Text,
				"session_id", e.SessionID)
		},
		OnFlagSet: func(ctx context.Context, e *domain.FlagEvent) {
			logger.DebugContext(ctx, "flag_set", "key", e.Key, "deleted", e.Deleted, "session_id", e.SessionID)
		},
		OnConditionError: func(ctx context.Context, e *domain.ConditionEvent) {
			logger.WarnContext(ctx, "condition_error", "node_id", e.NodeID, "expression", e.Expression, "err", e.Err)
		},
		OnValidationFailed: func(ctx context.Context, e *domain.ValidationEvent) {
			logger.WarnContext(ctx, "choice_rejected", "node_id", e.NodeID, "rule", e.Rule, "reason", e.Reason)
		},
		OnHistory: func(ctx context.Context, e *domain.HistoryEvent) {
			logger.DebugContext(ctx, "history", "operation", e.Operation, "success", e.Success, "duration", e.Duration)
		},
		OnAutosave: func(ctx context.Context, e *domain.AutosaveEvent) {
			logger.DebugContext(ctx, "autosave",
				"trigger", e.Trigger,
				"saved", e.Saved,
				"throttled", e.Throttled,
				"duration", e.Duration,
				"autosaves", e.AutosavesAfter,
			)
		},
		OnPersistence: func(ctx context.Context, e *domain.PersistenceEvent) {
			if !e.Success {
				logger.WarnContext(ctx, "persistence_failed", "operation", e.Operation, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "persistence", "operation", e.Operation, "duration", e.Duration)
		},
	}
}
