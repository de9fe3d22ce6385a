package runtime

import "context"

// PerformanceState describes evaluator cache usage and event log size.
func (e *Engine) PerformanceState(_ context.Context) map[string]any {
	stats := e.evaluator.Stats()
	return map[string]any{
		"conditionCache": map[string]any{
			"size":   stats.Size,
			"limit":  stats.Limit,
			"hits":   stats.Hits,
			"misses": stats.Misses,
		},
		"flowEvents": len(e.events),
	}
}

// BranchingContext describes the reader's position in the graph.
func (e *Engine) BranchingContext(ctx context.Context) map[string]any {
	out := map[string]any{
		"currentNodeId": e.state.CurrentNodeID,
		"historyDepth":  len(e.state.History),
	}
	node, err := e.currentNode()
	if err != nil {
		return out
	}
	visible := e.visibleChoices(ctx, node)
	available := e.validator.AvailableChoices(e.validationContext(node, visible))
	out["totalChoices"] = len(node.Choices)
	out["visibleChoices"] = len(visible)
	out["availableChoices"] = len(available)
	out["terminal"] = len(available) == 0
	return out
}

// ValidationState lists the active validation rules.
func (e *Engine) ValidationState(_ context.Context) map[string]any {
	return map[string]any{
		"rules": e.validator.Rules(),
	}
}
