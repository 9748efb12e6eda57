package team

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/junaidtitan/cozempic/internal/record"
)

// Tool names that indicate team or agent coordination.
var teamToolNames = map[string]bool{
	"TeamCreate": true, "TeamDelete": true, "TeamMessage": true, "SendMessage": true,
	"SpawnTeammate": true, "TeamStatus": true,
	"TaskCreate": true, "TaskUpdate": true, "TaskList": true, "TaskGet": true,
	"Task": true, "TaskOutput": true, "TaskStop": true,
}

// teamKeywords flags text that talks about team coordination even when no
// tool call is visible (tool results, relayed messages).
var teamKeywords = regexp.MustCompile(`(?i)team.?name|agent.?id|teammate|team.?lead|` +
	`SendMessage|TeamCreate|TaskCreate|TaskUpdate|` +
	`agent.?team|spawn.+teammate|team.+config|` +
	`subagent_type|run_in_background|resume.*agent`)

// taskNotificationPattern parses the XML the host agent delivers when a
// background agent completes.
var taskNotificationPattern = regexp.MustCompile(`(?s)<task-notification>\s*` +
	`<task-id>([^<]+)</task-id>\s*` +
	`<status>([^<]+)</status>\s*` +
	`<summary>([^<]*)</summary>\s*` +
	`<result>(.*?)</result>`)

var agentIDPattern = regexp.MustCompile(`(?i)agent[_-]?id[:\s]+([a-f0-9-]+)`)

// isCoordinationRecord reports whether a record belongs to team coordination.
func isCoordinationRecord(r record.Record) bool {
	if r.Kind() == record.KindTaskNotification {
		return true
	}
	if s, ok := r.ContentString(); ok {
		return strings.Contains(s, "<task-notification>") || teamKeywords.MatchString(s)
	}
	for _, b := range r.Blocks() {
		switch record.BlockType(b) {
		case "tool_use":
			if teamToolNames[b.Get("name").String()] {
				return true
			}
		case "tool_result":
			if c := b.Get("content"); c.Type == gjson.String && teamKeywords.MatchString(c.Str) {
				return true
			}
			if c := b.Get("content"); c.IsArray() {
				match := false
				c.ForEach(func(_, sub gjson.Result) bool {
					if t := sub.Get("text"); t.Type == gjson.String && teamKeywords.MatchString(t.Str) {
						match = true
						return false
					}
					return true
				})
				if match {
					return true
				}
			}
		case "text":
			if teamKeywords.MatchString(b.Get("text").String()) {
				return true
			}
		}
	}
	return false
}

// Extract scans the transcript for coordination patterns and builds a fresh
// State. Disk config is merged separately by MergeDiskConfig.
func Extract(seq record.Sequence) *State {
	state := &State{}
	coord := map[int]bool{}

	teammates := map[string]*Teammate{}
	subagents := map[string]*Subagent{}
	subagentOrder := []string{}
	tasks := map[string]*Task{}
	taskOrder := []string{}

	toolUseName := map[string]string{}    // tool_use id -> tool name
	toolUseSubagent := map[string]string{} // tool_use id -> subagent key

	for idx, r := range seq {
		if r.IsParseError() {
			continue
		}
		if !isCoordinationRecord(r) {
			continue
		}
		coord[idx] = true

		for _, b := range r.Blocks() {
			switch record.BlockType(b) {
			case "tool_use":
				name := b.Get("name").String()
				id := b.Get("id").String()
				input := b.Get("input")
				if id != "" && name != "" {
					toolUseName[id] = name
				}

				switch name {
				case "Task":
					key := input.Get("resume").String()
					if key == "" {
						key = id
					}
					if key == "" {
						continue
					}
					prompt := input.Get("prompt").String()
					if len(prompt) > 200 {
						prompt = prompt[:200]
					}
					desc := input.Get("description").String()
					if desc == "" && prompt != "" {
						desc = firstLine(prompt)
					}
					agent := &Subagent{
						AgentID:     key,
						Type:        input.Get("subagent_type").String(),
						Description: desc,
						Prompt:      prompt,
						Status:      "running",
					}
					if _, exists := subagents[key]; !exists {
						subagentOrder = append(subagentOrder, key)
					}
					subagents[key] = agent
					if id != "" {
						toolUseSubagent[id] = key
					}

				case "TaskStop":
					if tid := input.Get("task_id").String(); tid != "" {
						if a, ok := subagents[tid]; ok {
							a.Status = "stopped"
						}
					}

				case "TeamCreate":
					if n := input.Get("name").String(); n != "" {
						state.TeamName = n
					}
					input.Get("teammates").ForEach(func(_, tm gjson.Result) bool {
						agentID := tm.Get("agentId").String()
						if agentID == "" {
							agentID = tm.Get("agent_id").String()
						}
						if agentID == "" {
							return true
						}
						name := tm.Get("name").String()
						if name == "" {
							name = agentID
						}
						role := tm.Get("role").String()
						if role == "" {
							role = tm.Get("description").String()
						}
						teammates[agentID] = &Teammate{
							AgentID: agentID, Name: name, Role: role, Status: "running",
						}
						return true
					})

				case "TaskCreate":
					tid := input.Get("taskId").String()
					if tid == "" {
						tid = input.Get("id").String()
					}
					if tid == "" {
						tid = fmt.Sprintf("task-%d", len(tasks))
					}
					subject := input.Get("subject").String()
					if subject == "" {
						subject = input.Get("title").String()
					}
					if _, exists := tasks[tid]; !exists {
						taskOrder = append(taskOrder, tid)
					}
					tasks[tid] = &Task{
						ID: tid, Subject: subject, Status: "pending",
						Owner: input.Get("owner").String(),
					}

				case "TaskUpdate":
					tid := input.Get("taskId").String()
					if tid == "" {
						tid = input.Get("id").String()
					}
					if tid == "" {
						continue
					}
					t, ok := tasks[tid]
					if !ok {
						t = &Task{ID: tid, Status: "pending"}
						tasks[tid] = t
						taskOrder = append(taskOrder, tid)
					}
					if v := input.Get("status").String(); v != "" {
						t.Status = v
					}
					if v := input.Get("owner").String(); v != "" {
						t.Owner = v
					}
					if v := input.Get("subject").String(); v != "" {
						t.Subject = v
					}

				case "SendMessage", "TeamMessage":
					target := input.Get("to").String()
					if target == "" {
						target = input.Get("agentId").String()
					}
					if tm, ok := teammates[target]; ok {
						tm.Status = "running"
					}
				}

			case "tool_result":
				id := b.Get("tool_use_id").String()
				key, tracked := toolUseSubagent[id]
				if toolUseName[id] != "Task" && !tracked {
					continue
				}
				resultText := record.BlockText(b)
				if key != "" {
					if a, ok := subagents[key]; ok {
						a.Status = "completed"
						a.Result = clip(resultText, 300)
					}
					// A spawn result often reveals the durable agent id.
					if m := agentIDPattern.FindStringSubmatch(resultText); m != nil {
						if a, ok := subagents[key]; ok && a.AgentID == key {
							a.AgentID = m[1]
							delete(subagents, key)
							subagents[m[1]] = a
							for i, k := range subagentOrder {
								if k == key {
									subagentOrder[i] = m[1]
								}
							}
							toolUseSubagent[id] = m[1]
						}
					}
				}
			}
		}
	}

	// Second pass: task-notification XML carries the real result text for
	// background agents, delivered after the spawn result.
	for idx, r := range seq {
		s, ok := r.ContentString()
		if !ok || !strings.Contains(s, "<task-notification>") {
			continue
		}
		coord[idx] = true
		for _, m := range taskNotificationPattern.FindAllStringSubmatch(s, -1) {
			taskID := strings.TrimSpace(m[1])
			status := strings.TrimSpace(m[2])
			summary := strings.TrimSpace(m[3])
			result := strings.TrimSpace(m[4])

			a, ok := subagents[taskID]
			if !ok {
				a = &Subagent{AgentID: taskID, Description: summary}
				subagents[taskID] = a
				subagentOrder = append(subagentOrder, taskID)
			}
			a.Status = status
			a.Result = clip(result, 300)
			if a.Description == "" {
				a.Description = summary
			}
		}
	}

	// Lead summary: the last few team-related assistant texts.
	var leadTexts []string
	for idx, r := range seq {
		if !coord[idx] || r.Get("type").String() != "assistant" {
			continue
		}
		for _, b := range r.Blocks() {
			if record.BlockType(b) == "text" {
				if t := b.Get("text").String(); t != "" {
					leadTexts = append(leadTexts, clip(t, 300))
				}
			}
		}
	}
	if n := len(leadTexts); n > 0 {
		start := n - 3
		if start < 0 {
			start = 0
		}
		state.LeadSummary = strings.Join(leadTexts[start:], " [...] ")
	}

	for _, key := range subagentOrder {
		if a, ok := subagents[key]; ok {
			state.Subagents = append(state.Subagents, *a)
		}
	}
	for _, tm := range teammates {
		state.Teammates = append(state.Teammates, *tm)
	}
	sort.Slice(state.Teammates, func(i, j int) bool {
		return state.Teammates[i].Name < state.Teammates[j].Name
	})
	for _, tid := range taskOrder {
		state.Tasks = append(state.Tasks, *tasks[tid])
	}
	state.CoordIndices = sortedIndices(coord)
	return state
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
