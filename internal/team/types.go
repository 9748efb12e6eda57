// Package team extracts agent-team coordination state from a transcript,
// merges it with the on-disk team config, writes the human-readable
// checkpoint file, and shields coordination records through a prune.
package team

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Subagent is the runtime state of one spawned sub-agent.
type Subagent struct {
	AgentID     string
	Type        string
	Description string
	Prompt      string
	Status      string // running, completed, failed, stopped
	Result      string
	Model       string // from disk config
	Cwd         string // from disk config
}

// Teammate is a named member of an explicit team.
type Teammate struct {
	AgentID string
	Name    string
	Role    string
	Status  string
	Model   string
	Cwd     string
}

// Task is one entry of the shared task list.
type Task struct {
	ID      string
	Subject string
	Status  string // pending, in_progress, completed, cancelled
	Owner   string
}

// State is the extracted team picture. It is built fresh on every
// extraction pass and has no identity between passes.
type State struct {
	TeamName      string
	LeadAgentID   string
	LeadSessionID string

	Teammates []Teammate
	Subagents []Subagent
	Tasks     []Task

	// CoordIndices are the transcript indices of every coordination record,
	// in ascending order. Team-protect keeps these through a prune.
	CoordIndices []int

	LeadSummary string
}

// IsEmpty reports whether no team activity was found.
func (s *State) IsEmpty() bool {
	return s.TeamName == "" && len(s.Teammates) == 0 && len(s.Subagents) == 0 && len(s.Tasks) == 0
}

// CoordSet returns the coordination indices as a set.
func (s *State) CoordSet() map[int]bool {
	set := make(map[int]bool, len(s.CoordIndices))
	for _, i := range s.CoordIndices {
		set[i] = true
	}
	return set
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160]
	}
	return s
}

// Checkpoint renders the state as the on-disk checkpoint file: plain text,
// safe to display in a terminal, no escapes.
func (s *State) Checkpoint(now time.Time) string {
	var b strings.Builder
	name := s.TeamName
	if name == "" {
		name = "unnamed"
	}
	fmt.Fprintf(&b, "Team checkpoint: %s\n", name)
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(time.RFC3339))
	if s.LeadAgentID != "" {
		fmt.Fprintf(&b, "Lead agent: %s\n", s.LeadAgentID)
	}
	if s.LeadSessionID != "" {
		fmt.Fprintf(&b, "Lead session: %s\n", s.LeadSessionID)
	}
	b.WriteString("\n")

	if len(s.Teammates) > 0 {
		b.WriteString("Teammates:\n")
		for _, t := range s.Teammates {
			fmt.Fprintf(&b, "  %s  %s", shortID(t.AgentID), t.Name)
			if t.Role != "" {
				fmt.Fprintf(&b, " — %s", t.Role)
			}
			if t.Status != "" {
				fmt.Fprintf(&b, " [%s]", t.Status)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(s.Subagents) > 0 {
		b.WriteString("Subagents:\n")
		for _, a := range s.Subagents {
			fmt.Fprintf(&b, "  %s", shortID(a.AgentID))
			if a.Type != "" {
				fmt.Fprintf(&b, " [%s]", a.Type)
			}
			if a.Description != "" {
				fmt.Fprintf(&b, " — %s", firstLine(a.Description))
			}
			fmt.Fprintf(&b, " (%s)\n", a.Status)
			if a.Result != "" {
				fmt.Fprintf(&b, "    result: %s\n", firstLine(a.Result))
			}
		}
		b.WriteString("\n")
	}

	if len(s.Tasks) > 0 {
		b.WriteString("Task list:\n")
		marks := map[string]string{
			"completed":   "x",
			"in_progress": "/",
			"pending":     " ",
			"cancelled":   "-",
		}
		for _, t := range s.Tasks {
			mark, ok := marks[t.Status]
			if !ok {
				mark = "?"
			}
			fmt.Fprintf(&b, "  [%s] %s", mark, t.Subject)
			if t.Owner != "" {
				fmt.Fprintf(&b, " @%s", t.Owner)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if s.LeadSummary != "" {
		b.WriteString("Lead context:\n")
		fmt.Fprintf(&b, "  %s\n\n", firstLine(s.LeadSummary))
	}

	fmt.Fprintf(&b, "%d coordination records tracked\n", len(s.CoordIndices))
	return b.String()
}

// RecoveryText renders the state as conversation text for the synthetic
// recovery pair injected after a guarded prune.
func (s *State) RecoveryText() string {
	var parts []string
	name := s.TeamName
	if name == "" {
		name = "unnamed"
	}
	parts = append(parts, fmt.Sprintf("Active agent team: %s", name))

	if len(s.Teammates) > 0 {
		parts = append(parts, "\nTeammates:")
		for _, t := range s.Teammates {
			line := fmt.Sprintf("  - %s (agent_id: %s)", t.Name, t.AgentID)
			if t.Role != "" {
				line += " — " + t.Role
			}
			if t.Status != "" {
				line += " [" + t.Status + "]"
			}
			parts = append(parts, line)
		}
	}

	if len(s.Subagents) > 0 {
		parts = append(parts, fmt.Sprintf("\nSubagents (%d):", len(s.Subagents)))
		for _, a := range s.Subagents {
			line := "  - " + a.AgentID
			if a.Type != "" {
				line += " [" + a.Type + "]"
			}
			if a.Description != "" {
				line += " — " + firstLine(a.Description)
			}
			line += " [" + a.Status + "]"
			parts = append(parts, line)
			if a.Result != "" {
				parts = append(parts, "    result: "+firstLine(a.Result))
			}
		}
	}

	if len(s.Tasks) > 0 {
		parts = append(parts, "\nShared task list:")
		for _, t := range s.Tasks {
			line := fmt.Sprintf("  - [%s] %s", strings.ToUpper(t.Status), t.Subject)
			if t.Owner != "" {
				line += fmt.Sprintf(" (owner: %s)", t.Owner)
			}
			parts = append(parts, line)
		}
	}

	if s.LeadSummary != "" {
		parts = append(parts, "\nCoordination context: "+firstLine(s.LeadSummary))
	}

	return strings.Join(parts, "\n")
}

func sortedIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
