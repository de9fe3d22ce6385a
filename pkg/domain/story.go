package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Story is the read-only graph consumed by the engine.
type Story struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	InitialNodeID string `json:"initialNodeId" yaml:"initialNodeId" mapstructure:"initialNodeId"`
	Nodes         []Node `json:"nodes" yaml:"nodes" mapstructure:"nodes"`

	index map[string]int
	hash  string
}

// NewStory builds an indexed story and checks its structural invariants:
// node IDs are non-empty and unique, and the initial node exists.
func NewStory(initialNodeID string, nodes ...Node) (*Story, error) {
	s := &Story{InitialNodeID: initialNodeID, Nodes: nodes}
	if err := s.Index(); err != nil {
		return nil, err
	}
	return s, nil
}

// Index (re)builds the ID lookup table. It must be called after a Story is
// decoded from an external source.
func (s *Story) Index() error {
	s.index = make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node at position %d has an empty id", i)
		}
		if _, dup := s.index[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		s.index[n.ID] = i
	}
	if s.InitialNodeID == "" {
		return fmt.Errorf("story has no initial node")
	}
	if _, ok := s.index[s.InitialNodeID]; !ok {
		return &NavigationError{NodeID: s.InitialNodeID, Reason: "initial node not found in story"}
	}
	s.hash = structuralHash(s.Nodes)
	return nil
}

// Lookup returns the node with the given ID.
func (s *Story) Lookup(id string) (*Node, bool) {
	if s.index == nil {
		if err := s.Index(); err != nil {
			return nil, false
		}
	}
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

// NodeIDs returns all node IDs sorted.
func (s *Story) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// Hash returns the structural hash of the story (node count plus sorted IDs).
// Saves carry this value as their storyId so they cannot be loaded into an
// unrelated story.
func (s *Story) Hash() string {
	if s.hash == "" {
		s.hash = structuralHash(s.Nodes)
	}
	return s.hash
}

func structuralHash(nodes []Node) string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	sum := xxhash.Sum64String(strconv.Itoa(len(ids)) + "|" + strings.Join(ids, ","))
	return strconv.FormatUint(sum, 16)
}
