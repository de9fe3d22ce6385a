package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/persistence"
)

// Trigger names an event that may cause an autosave.
type Trigger string

const (
	TriggerChoice Trigger = "choice"
	TriggerFlag   Trigger = "flag"
	TriggerLoad   Trigger = "load"
	TriggerCustom Trigger = "custom"
)

// Autosave defaults.
const (
	DefaultAutosaveInterval = 30 * time.Second
	DefaultMaxAutosaves     = 5
)

// AutosaveConfig controls automatic checkpointing.
type AutosaveConfig struct {
	Enabled  bool
	Triggers []Trigger
	// MinInterval drops triggers that arrive sooner than this after the
	// previous autosave.
	MinInterval time.Duration
	// MaxAutosaves bounds the retained autosave checkpoints.
	MaxAutosaves int
}

func (c AutosaveConfig) withDefaults() AutosaveConfig {
	if c.Triggers == nil {
		c.Triggers = []Trigger{TriggerChoice, TriggerFlag, TriggerLoad, TriggerCustom}
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.MaxAutosaves <= 0 {
		c.MaxAutosaves = DefaultMaxAutosaves
	}
	return c
}

// DefaultAutosaveConfig is an enabled configuration with default triggers,
// interval and retention.
func DefaultAutosaveConfig() AutosaveConfig {
	return AutosaveConfig{Enabled: true, MinInterval: DefaultAutosaveInterval}.withDefaults()
}

// AutosaveResult reports how a trigger was handled.
type AutosaveResult struct {
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Saved        bool          `json:"saved"`
	Throttled    bool          `json:"throttled"`
	Skipped      bool          `json:"skipped"`
	CheckpointID string        `json:"checkpointId,omitempty"`
	Evicted      int           `json:"evicted,omitempty"`
	Duration     time.Duration `json:"duration"`
	// AutosavesBefore is the number of autosave checkpoints held when the
	// trigger arrived; AutosavesAfter is the number held once it was
	// handled, after pruning.
	AutosavesBefore int `json:"autosavesBefore"`
	AutosavesAfter  int `json:"autosavesAfter"`
}

var errAutosaveUnavailable = errors.New("autosave has no checkpoint manager")

// TriggerFor maps a mutation action to its autosave trigger.
func TriggerFor(action string) (Trigger, bool) {
	switch action {
	case domain.ActionChoice:
		return TriggerChoice, true
	case domain.ActionFlag:
		return TriggerFlag, true
	case domain.ActionLoad:
		return TriggerLoad, true
	}
	return "", false
}

// Autosave handles a trigger. Disabled autosave and triggers outside the
// configured set are skipped; triggers inside the throttle window are
// dropped and reported as throttled.
func (c *Controller) Autosave(ctx context.Context, trigger Trigger) AutosaveResult {
	start := c.clock()
	before := c.autosaveCount()
	res := c.autosaveOnce(ctx, trigger)
	res.Duration = c.clock().Sub(start)
	res.AutosavesBefore = before
	res.AutosavesAfter = c.autosaveCount()

	if c.hooks.OnAutosave != nil && !res.Skipped {
		c.hooks.OnAutosave(ctx, &domain.AutosaveEvent{
			EventBase:       domain.EventBase{Timestamp: c.clock()},
			Trigger:         string(trigger),
			Saved:           res.Saved,
			Throttled:       res.Throttled,
			CheckpointID:    res.CheckpointID,
			Duration:        res.Duration,
			AutosavesBefore: res.AutosavesBefore,
			AutosavesAfter:  res.AutosavesAfter,
		})
	}
	return res
}

func (c *Controller) autosaveCount() int {
	if c.checkpoints == nil {
		return 0
	}
	return len(c.checkpoints.ListCheckpoints(persistence.CheckpointFilter{Tag: persistence.AutosaveTag}))
}

func (c *Controller) autosaveOnce(ctx context.Context, trigger Trigger) AutosaveResult {
	if !c.autosave.Enabled || !c.hasTrigger(trigger) {
		return AutosaveResult{Success: true, Skipped: true}
	}
	if c.checkpoints == nil {
		return AutosaveResult{Error: errAutosaveUnavailable.Error()}
	}

	now := c.clock()
	if !c.lastAutosave.IsZero() && now.Sub(c.lastAutosave) < c.autosave.MinInterval {
		c.logger.Debug("autosave throttled", "trigger", string(trigger))
		return AutosaveResult{Success: true, Throttled: true}
	}

	cp, err := c.checkpoints.CreateCheckpoint(ctx, "Autosave "+now.UTC().Format(time.RFC3339), persistence.CheckpointOptions{
		Tags:     []string{persistence.AutosaveTag},
		Metadata: map[string]any{"trigger": string(trigger)},
	})
	if err != nil {
		c.logger.Warn("autosave failed", "trigger", string(trigger), "err", err)
		return AutosaveResult{Error: fmt.Sprintf("autosave failed: %v", err)}
	}
	c.lastAutosave = now

	return AutosaveResult{
		Success:      true,
		Saved:        true,
		CheckpointID: cp.ID,
		Evicted:      c.pruneAutosaves(ctx),
	}
}

// pruneAutosaves deletes the oldest autosave checkpoints over the limit.
func (c *Controller) pruneAutosaves(ctx context.Context) int {
	saves := c.checkpoints.ListCheckpoints(persistence.CheckpointFilter{Tag: persistence.AutosaveTag})
	over := len(saves) - c.autosave.MaxAutosaves
	if over <= 0 {
		return 0
	}
	sort.SliceStable(saves, func(i, j int) bool {
		return saves[i].Timestamp.Before(saves[j].Timestamp)
	})
	for _, cp := range saves[:over] {
		c.checkpoints.DeleteCheckpoint(ctx, cp.ID)
	}
	return over
}

func (c *Controller) hasTrigger(t Trigger) bool {
	for _, x := range c.autosave.Triggers {
		if x == t {
			return true
		}
	}
	return false
}

// AutosaveConfig returns the active autosave configuration.
func (c *Controller) AutosaveConfig() AutosaveConfig {
	cfg := c.autosave
	cfg.Triggers = append([]Trigger(nil), c.autosave.Triggers...)
	return cfg
}

// SetAutosaveEnabled toggles autosave.
func (c *Controller) SetAutosaveEnabled(enabled bool) {
	c.autosave.Enabled = enabled
}

// SetAutosaveInterval changes the throttle window.
func (c *Controller) SetAutosaveInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.autosave.MinInterval = d
}

// SetAutosaveTriggers replaces the trigger set.
func (c *Controller) SetAutosaveTriggers(triggers ...Trigger) {
	c.autosave.Triggers = append([]Trigger{}, triggers...)
}

// SetMaxAutosaves changes how many autosave checkpoints are kept.
func (c *Controller) SetMaxAutosaves(n int) {
	if n > 0 {
		c.autosave.MaxAutosaves = n
	}
}

// SetCheckpointer attaches the checkpoint manager autosaves go through.
func (c *Controller) SetCheckpointer(cp Checkpointer) {
	c.checkpoints = cp
}
