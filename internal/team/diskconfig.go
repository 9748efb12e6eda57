package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DiskConfig is the authoritative team definition at
// <teams-root>/<team>/config.json. The transcript never overrides it.
type DiskConfig struct {
	Name          string       `json:"name"`
	LeadAgentID   string       `json:"lead_agent_id"`
	LeadSessionID string       `json:"lead_session_id"`
	Members       []DiskMember `json:"members"`
}

// DiskMember is one configured member.
type DiskMember struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Cwd     string `json:"cwd"`
}

// LoadDiskConfig reads the team config. A missing file is not an error;
// it returns (nil, nil).
func LoadDiskConfig(teamsDir, teamName string) (*DiskConfig, error) {
	if teamsDir == "" || teamName == "" {
		return nil, nil
	}
	path := filepath.Join(teamsDir, teamName, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading team config: %w", err)
	}
	var cfg DiskConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing team config %s: %w", path, err)
	}
	return &cfg, nil
}

// MergeDiskConfig overlays the on-disk config onto an extracted state.
// The disk wins for identity fields (team name, lead ids, member role,
// model, working directory); the transcript stays authoritative for runtime
// status, results, and the task list.
func MergeDiskConfig(state *State, cfg *DiskConfig) {
	if cfg == nil {
		return
	}
	if cfg.Name != "" {
		state.TeamName = cfg.Name
	}
	if cfg.LeadAgentID != "" {
		state.LeadAgentID = cfg.LeadAgentID
	}
	if cfg.LeadSessionID != "" {
		state.LeadSessionID = cfg.LeadSessionID
	}

	byID := map[string]DiskMember{}
	for _, m := range cfg.Members {
		byID[m.AgentID] = m
	}

	seen := map[string]bool{}
	for i := range state.Teammates {
		t := &state.Teammates[i]
		if m, ok := byID[t.AgentID]; ok {
			seen[t.AgentID] = true
			if m.Name != "" {
				t.Name = m.Name
			}
			if m.Role != "" {
				t.Role = m.Role
			}
			t.Model = m.Model
			t.Cwd = m.Cwd
		}
	}
	for i := range state.Subagents {
		a := &state.Subagents[i]
		if m, ok := byID[a.AgentID]; ok {
			seen[a.AgentID] = true
			if m.Role != "" {
				a.Type = m.Role
			}
			a.Model = m.Model
			a.Cwd = m.Cwd
		}
	}

	// Configured members the transcript never mentioned still belong to the
	// roster; their runtime status is simply unknown.
	for _, m := range cfg.Members {
		if m.AgentID == "" || seen[m.AgentID] {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.AgentID
		}
		state.Teammates = append(state.Teammates, Teammate{
			AgentID: m.AgentID,
			Name:    name,
			Role:    m.Role,
			Status:  "unknown",
			Model:   m.Model,
			Cwd:     m.Cwd,
		})
	}
}
