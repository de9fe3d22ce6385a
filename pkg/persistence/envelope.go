package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/fable/pkg/domain"
)

// SaveOptions selects the optional parts of an envelope.
type SaveOptions struct {
	IncludeFlowEvents       bool
	IncludePerformanceState bool
	IncludeBranchingContext bool
	IncludeValidationState  bool
	// Checksum stamps a SHA-256 over the canonical envelope.
	Checksum bool
	// Compression is recorded in metadata and applied by SaveToStorage.
	Compression    string
	CustomMetadata map[string]any
}

// MigrationFunc upgrades an envelope written by another engine version.
// It receives a private copy and may modify it in place.
type MigrationFunc func(env *domain.SerializedState) (*domain.SerializedState, error)

// LoadOptions controls envelope verification.
type LoadOptions struct {
	// VerifyChecksum rejects envelopes whose checksum does not match.
	VerifyChecksum bool
	// Migrate, when set, runs before the state is applied. It also makes
	// envelopes from an older major version loadable.
	Migrate MigrationFunc
}

// LoadResult reports the outcome of a load or restore.
type LoadResult struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Migrated bool     `json:"migrated,omitempty"`
	// Err is the underlying error, for errors.Is checks.
	Err error `json:"-"`
}

func failed(err error, warnings []string) LoadResult {
	return LoadResult{Success: false, Error: err.Error(), Err: err, Warnings: warnings}
}

// Save snapshots the target into a new envelope.
func (m *Manager) Save(ctx context.Context, opts SaveOptions) (*domain.SerializedState, error) {
	start := m.clock()
	env, err := m.save(ctx, opts)
	m.report(ctx, "save", start, err)
	return env, err
}

func (m *Manager) save(ctx context.Context, opts SaveOptions) (*domain.SerializedState, error) {
	compression := opts.Compression
	if compression == "" {
		compression = domain.CompressionNone
	}
	env := &domain.SerializedState{
		State: m.target.State(),
		Metadata: domain.Metadata{
			EngineVersion: m.version,
			Timestamp:     m.clock().UTC().Format(time.RFC3339Nano),
			StoryID:       m.target.Story().Hash(),
			Compression:   compression,
		},
	}
	if len(opts.CustomMetadata) > 0 {
		env.Metadata.CustomMetadata = domain.CloneFlags(opts.CustomMetadata)
	}
	if log, ok := m.target.(EventLog); ok && opts.IncludeFlowEvents {
		env.FlowEvents = log.Events()
	}
	if r, ok := m.target.(Reporter); ok {
		if opts.IncludePerformanceState {
			env.PerformanceState = r.PerformanceState(ctx)
		}
		if opts.IncludeBranchingContext {
			env.BranchingContext = r.BranchingContext(ctx)
		}
		if opts.IncludeValidationState {
			env.ValidationState = r.ValidationState(ctx)
		}
	}
	if opts.Checksum {
		sum, err := Checksum(env)
		if err != nil {
			return nil, err
		}
		env.Metadata.Checksum = sum
	}
	return env, nil
}

// Checksum computes the SHA-256 of the envelope's canonical JSON with the
// checksum field itself cleared.
func Checksum(env *domain.SerializedState) (string, error) {
	c := *env
	c.Metadata.Checksum = ""
	raw, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize envelope: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Load verifies an envelope and, if every check passes, replaces the
// target's state with it. Nothing is applied on failure.
func (m *Manager) Load(ctx context.Context, env *domain.SerializedState, opts LoadOptions) LoadResult {
	start := m.clock()
	res := m.load(ctx, env, opts)
	m.report(ctx, "load", start, res.Err)
	if !res.Success {
		m.logger.Warn("load rejected", "err", res.Err)
	}
	return res
}

func (m *Manager) load(ctx context.Context, env *domain.SerializedState, opts LoadOptions) LoadResult {
	if err := m.checkEnvelope(env); err != nil {
		return failed(err, nil)
	}

	compat := CheckCompatibility(env.Metadata.EngineVersion, m.version)
	warnings := compat.Warnings
	if !compat.Compatible && !(compat.NeedsMigration && opts.Migrate != nil) {
		return failed(fmt.Errorf("%w: %s", domain.ErrIncompatibleVersion, compat.Reason), warnings)
	}

	if opts.VerifyChecksum {
		if env.Metadata.Checksum == "" {
			warnings = append(warnings, "envelope has no checksum; integrity not verified")
		} else {
			sum, err := Checksum(env)
			if err != nil {
				return failed(err, warnings)
			}
			if sum != env.Metadata.Checksum {
				return failed(fmt.Errorf("%w: expected %s, computed %s", domain.ErrChecksumMismatch, env.Metadata.Checksum, sum), warnings)
			}
		}
	}

	migrated := false
	if opts.Migrate != nil {
		next, err := opts.Migrate(cloneEnvelope(env))
		if err != nil {
			return failed(fmt.Errorf("migration failed: %w", err), warnings)
		}
		if next == nil {
			return failed(errors.New("migration returned no envelope"), warnings)
		}
		// A migration may rewrite anything, so the result is held to the
		// same rules as a fresh envelope.
		if err := m.checkEnvelope(next); err != nil {
			return failed(fmt.Errorf("migration produced an unusable envelope: %w", err), warnings)
		}
		if c := CheckCompatibility(next.Metadata.EngineVersion, m.version); !c.Compatible {
			return failed(fmt.Errorf("%w: migrated envelope: %s", domain.ErrIncompatibleVersion, c.Reason), warnings)
		}
		env = next
		migrated = true
	}

	if err := m.target.Replace(ctx, env.State, domain.ActionLoad); err != nil {
		return failed(fmt.Errorf("failed to apply state: %w", err), warnings)
	}
	if log, ok := m.target.(EventLog); ok && env.FlowEvents != nil {
		log.SetEvents(env.FlowEvents)
	}
	return LoadResult{Success: true, Warnings: warnings, Migrated: migrated}
}

func (m *Manager) checkEnvelope(env *domain.SerializedState) error {
	if err := checkRequired(env); err != nil {
		return err
	}
	if got, want := env.Metadata.StoryID, m.target.Story().Hash(); got != want {
		return fmt.Errorf("%w: save belongs to story %s, loaded story is %s", domain.ErrStoryMismatch, got, want)
	}
	return nil
}

func checkRequired(env *domain.SerializedState) error {
	switch {
	case env == nil:
		return fmt.Errorf("%w: envelope is nil", domain.ErrInvalidEnvelope)
	case env.State.CurrentNodeID == "":
		return fmt.Errorf("%w: state.currentNodeId is required", domain.ErrInvalidEnvelope)
	case env.Metadata.EngineVersion == "":
		return fmt.Errorf("%w: metadata.engineVersion is required", domain.ErrInvalidEnvelope)
	case env.Metadata.StoryID == "":
		return fmt.Errorf("%w: metadata.storyId is required", domain.ErrInvalidEnvelope)
	case env.Metadata.Timestamp == "":
		return fmt.Errorf("%w: metadata.timestamp is required", domain.ErrInvalidEnvelope)
	}
	return nil
}

func cloneEnvelope(env *domain.SerializedState) *domain.SerializedState {
	c := *env
	c.State = env.State.Clone()
	c.FlowEvents = append([]domain.FlowEvent(nil), env.FlowEvents...)
	c.Metadata.CustomMetadata = cloneMap(env.Metadata.CustomMetadata)
	c.PerformanceState = cloneMap(env.PerformanceState)
	c.BranchingContext = cloneMap(env.BranchingContext)
	c.ValidationState = cloneMap(env.ValidationState)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return domain.CloneFlags(m)
}
