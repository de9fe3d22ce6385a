package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/fable/pkg/condition"
	"github.com/aretw0/fable/pkg/domain"
)

// Severity of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about a story graph.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"nodeId"`
	Choice   int      `json:"choice"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.Choice >= 0 {
		return fmt.Sprintf("%s: node '%s' choice %d: %s", i.Severity, i.NodeID, i.Choice, i.Message)
	}
	return fmt.Sprintf("%s: node '%s': %s", i.Severity, i.NodeID, i.Message)
}

// Report collects every issue found in a story.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Errors returns the issues that make the story unplayable.
func (r Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the issues worth fixing that do not break play.
func (r Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r Report) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Err folds the errors into one error, or nil when there are none.
func (r Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(errs), strings.Join(lines, "\n- "))
}

// ValidateStory checks for broken links, conditions that do not compile,
// and nodes unreachable from the initial node. A nil evaluator uses the
// default one.
func ValidateStory(story *domain.Story, ev *condition.Evaluator) Report {
	if ev == nil {
		ev = condition.New()
	}
	var r Report
	add := func(sev Severity, node string, choice int, format string, args ...any) {
		r.Issues = append(r.Issues, Issue{Severity: sev, NodeID: node, Choice: choice, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := story.Lookup(story.InitialNodeID); !ok {
		add(SeverityError, story.InitialNodeID, -1, "initial node not found")
		return r
	}

	for _, n := range story.Nodes {
		for i, c := range n.Choices {
			if c.NextNodeID == "" {
				add(SeverityError, n.ID, i, "choice has no target")
			} else if _, ok := story.Lookup(c.NextNodeID); !ok {
				add(SeverityError, n.ID, i, "links to missing node '%s'", c.NextNodeID)
			}
			if c.Condition != "" {
				if err := ev.Compile(c.Condition); err != nil {
					add(SeverityError, n.ID, i, "condition does not compile: %v", err)
				}
			}
			if strings.TrimSpace(c.Text) == "" {
				add(SeverityWarning, n.ID, i, "choice has no text")
			}
			if c.IsDisabled() {
				add(SeverityWarning, n.ID, i, "choice is disabled and can never be taken")
			}
		}
	}

	// Crawl from the initial node.
	visited := map[string]bool{}
	queue := []string{story.InitialNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		node, ok := story.Lookup(id)
		if !ok {
			continue
		}
		for _, c := range node.Choices {
			if c.NextNodeID != "" && !visited[c.NextNodeID] {
				queue = append(queue, c.NextNodeID)
			}
		}
	}
	for _, n := range story.Nodes {
		if !visited[n.ID] {
			add(SeverityWarning, n.ID, -1, "unreachable from '%s'", story.InitialNodeID)
		}
	}
	return r
}
