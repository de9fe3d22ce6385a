package domain

import "time"

// Compression values recorded in envelope metadata.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// SerializedState is the full save envelope. Its JSON field names are the
// wire contract for interop with existing saves.
type SerializedState struct {
	State            State          `json:"state"`
	FlowEvents       []FlowEvent    `json:"flowEvents,omitempty"`
	Metadata         Metadata       `json:"metadata"`
	PerformanceState map[string]any `json:"performanceState,omitempty"`
	BranchingContext map[string]any `json:"branchingContext,omitempty"`
	ValidationState  map[string]any `json:"validationState,omitempty"`
}

// Metadata stamps an envelope with version and integrity information.
type Metadata struct {
	EngineVersion  string         `json:"engineVersion"`
	Timestamp      string         `json:"timestamp"`
	StoryID        string         `json:"storyId"`
	Checksum       string         `json:"checksum,omitempty"`
	Compression    string         `json:"compression"`
	CustomMetadata map[string]any `json:"customMetadata,omitempty"`
}

// Checkpoint is a lightweight named snapshot. It carries no flow or
// performance data.
type Checkpoint struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	State       State          `json:"state"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasTag reports whether the checkpoint carries the given tag.
func (c *Checkpoint) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HistoryEntry is one undo or redo stack frame.
type HistoryEntry struct {
	ID        string         `json:"id"`
	State     State          `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
