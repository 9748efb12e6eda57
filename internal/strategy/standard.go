package strategy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/junaidtitan/cozempic/internal/record"
)

func init() {
	register(Info{
		Name:            "thinking-blocks",
		Tier:            TierStandard,
		Description:     "Remove, truncate, or de-sign thinking blocks",
		ExpectedSavings: "2-5%",
		Run:             thinkingBlocks,
	})
	register(Info{
		Name:            "tool-output-trim",
		Tier:            TierStandard,
		Description:     "Trim oversized tool_result payloads",
		ExpectedSavings: "1-8%",
		Run:             toolOutputTrim,
	})
	register(Info{
		Name:            "stale-reads",
		Tier:            TierStandard,
		Description:     "Drop file reads superseded by a later edit",
		ExpectedSavings: "0.5-2%",
		Run:             staleReads,
	})
	register(Info{
		Name:            "system-reminder-dedup",
		Tier:            TierStandard,
		Description:     "Keep only the first copy of each system-reminder",
		ExpectedSavings: "0.1-3%",
		Run:             systemReminderDedup,
	})
}

const thinkingTruncateChars = 200

// thinkingBlocks rewrites thinking content in assistant records. Modes:
// remove drops block and signature, truncate keeps the first 200 characters
// and drops the signature, signature-only drops the signature field alone.
// Stray signatures on non-thinking blocks are always dropped.
func thinkingBlocks(seq record.Sequence, cfg *Config) Result {
	mode := cfg.ThinkingMode
	var actions []Action

	for i, r := range seq {
		if r.Get("type").String() != "assistant" {
			continue
		}
		blocks := r.Blocks()
		if len(blocks) == 0 {
			continue
		}

		newBlocks := make([]any, 0, len(blocks))
		changed := false
		for _, b := range blocks {
			if record.BlockType(b) != "thinking" {
				if b.Get("signature").Exists() {
					m := blockValue(b)
					delete(m, "signature")
					newBlocks = append(newBlocks, m)
					changed = true
				} else {
					newBlocks = append(newBlocks, b.Value())
				}
				continue
			}

			switch mode {
			case "remove":
				changed = true
			case "truncate":
				m := blockValue(b)
				hadSignature := b.Get("signature").Exists()
				delete(m, "signature")
				truncated := false
				if thinking, _ := m["thinking"].(string); utf8.RuneCountInString(thinking) > thinkingTruncateChars &&
					!strings.HasSuffix(thinking, "...[truncated]") {
					m["thinking"] = string([]rune(thinking)[:thinkingTruncateChars]) + "...[truncated]"
					truncated = true
				}
				newBlocks = append(newBlocks, m)
				changed = changed || hadSignature || truncated
			case "signature-only":
				if b.Get("signature").Exists() {
					m := blockValue(b)
					delete(m, "signature")
					newBlocks = append(newBlocks, m)
					changed = true
				} else {
					newBlocks = append(newBlocks, b.Value())
				}
			default:
				newBlocks = append(newBlocks, b.Value())
			}
		}

		if !changed {
			continue
		}
		next, err := r.WithBlocks(newBlocks)
		if err != nil || next.Size() >= r.Size() {
			continue
		}
		actions = append(actions, Action{
			Type:        ActionReplace,
			First:       i,
			Last:        i,
			Replacement: next,
			Reason:      "thinking-blocks (" + mode + ")",
		})
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("processed thinking blocks in %d records (mode=%s)", len(actions), mode),
	}
}

const (
	toolTrimHeadLines = 50
	toolTrimTailLines = 20
)

// toolOutputTrim trims tool_result payloads that exceed the byte or line
// ceiling, keeping the first 50 and last 20 lines around a marker that
// records the original byte count.
func toolOutputTrim(seq record.Sequence, cfg *Config) Result {
	maxBytes := cfg.ToolOutputMaxBytes
	maxLines := cfg.ToolOutputMaxLines
	var actions []Action

	for i, r := range seq {
		blocks := r.Blocks()
		if len(blocks) == 0 {
			continue
		}

		newBlocks := make([]any, 0, len(blocks))
		changed := false
		for _, b := range blocks {
			if record.BlockType(b) != "tool_result" {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			content := b.Get("content")
			if content.IsArray() {
				// Structured content: trim oversized text parts in place.
				if len(content.Raw) <= maxBytes {
					newBlocks = append(newBlocks, b.Value())
					continue
				}
				m := blockValue(b)
				parts, _ := m["content"].([]any)
				for pi, part := range parts {
					pm, ok := part.(map[string]any)
					if !ok {
						continue
					}
					if text, _ := pm["text"].(string); len(text) > maxBytes &&
						!strings.Contains(text, "trimmed by cozempic") {
						pm["text"] = trimHeadTail(text, toolTrimHeadLines, toolTrimTailLines,
							trimMarker(len(text)))
						parts[pi] = pm
					}
				}
				newBlocks = append(newBlocks, m)
				changed = true
				continue
			}

			text := content.String()
			if text == "" || strings.Contains(text, "trimmed by cozempic") {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			lines := strings.Count(text, "\n") + 1
			if len(text) <= maxBytes && lines <= maxLines {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			m := blockValue(b)
			m["content"] = trimHeadTail(text, toolTrimHeadLines, toolTrimTailLines, trimMarker(len(text)))
			newBlocks = append(newBlocks, m)
			changed = true
		}

		if !changed {
			continue
		}
		next, err := r.WithBlocks(newBlocks)
		if err != nil || next.Size() >= r.Size() {
			continue
		}
		actions = append(actions, Action{
			Type:        ActionReplace,
			First:       i,
			Last:        i,
			Replacement: next,
			Reason:      "tool-output-trim",
		})
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("trimmed oversized tool output in %d records", len(actions)),
	}
}

func trimMarker(originalBytes int) string {
	return fmt.Sprintf("... [tool output trimmed by cozempic; original %d bytes] ...", originalBytes)
}

var readToolNames = map[string]bool{"Read": true, "read": true}
var editToolNames = map[string]bool{"Edit": true, "edit": true, "Write": true, "write": true, "MultiEdit": true}

// staleReads drops the result record of a file read whose path receives an
// edit before any subsequent read of the same path. Path identity is the
// exact string carried by the tool call, whitespace-trimmed.
func staleReads(seq record.Sequence, _ *Config) Result {
	type fileEvent struct {
		useIdx    int    // index of the record carrying the tool_use
		resultIdx int    // index of the matching tool_result record (-1 if none)
		kind      string // "read" or "edit"
	}

	// Map tool_use id -> (path, kind), then locate results.
	usePath := map[string]string{}
	useKind := map[string]string{}
	useIdx := map[string]int{}
	var order []string

	for i, r := range seq {
		for _, b := range toolUseBlocks(r) {
			name := b.Get("name").String()
			var kind string
			switch {
			case readToolNames[name]:
				kind = "read"
			case editToolNames[name]:
				kind = "edit"
			default:
				continue
			}
			path := strings.TrimSpace(b.Get("input.file_path").String())
			if path == "" {
				continue
			}
			id := b.Get("id").String()
			if id == "" {
				id = fmt.Sprintf("anon-%d-%s", i, name)
			}
			usePath[id] = path
			useKind[id] = kind
			useIdx[id] = i
			order = append(order, id)
		}
	}

	resultIdx := map[string]int{}
	for i, r := range seq {
		for _, b := range toolResultBlocks(r) {
			id := b.Get("tool_use_id").String()
			if _, tracked := usePath[id]; tracked {
				if _, seen := resultIdx[id]; !seen {
					resultIdx[id] = i
				}
			}
		}
	}

	events := map[string][]fileEvent{}
	for _, id := range order {
		ev := fileEvent{useIdx: useIdx[id], resultIdx: -1, kind: useKind[id]}
		if ri, ok := resultIdx[id]; ok {
			ev.resultIdx = ri
		}
		events[usePath[id]] = append(events[usePath[id]], ev)
	}

	var actions []Action
	claimed := map[int]bool{}
	for _, evs := range events {
		for i, ev := range evs {
			if ev.kind != "read" || ev.resultIdx < 0 {
				continue
			}
			// Stale when the next event on this path is an edit.
			if i+1 < len(evs) && evs[i+1].kind == "edit" {
				if claimed[ev.resultIdx] || seq[ev.resultIdx].Kind().Protected() {
					continue
				}
				claimed[ev.resultIdx] = true
				actions = append(actions, Action{
					Type:   ActionDrop,
					First:  ev.resultIdx,
					Last:   ev.resultIdx,
					Reason: "stale read, file later edited",
				})
			}
		}
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("dropped %d stale file reads", len(actions)),
	}
}

var reminderPattern = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)
var excessNewlines = regexp.MustCompile(`\n{3,}`)

// systemReminderDedup keeps the first copy of each distinct system-reminder
// and removes the rest from their hosting blocks. Records hollowed out by
// the removal are dropped.
func systemReminderDedup(seq record.Sequence, _ *Config) Result {
	seen := map[string]bool{}
	var actions []Action
	dropped := 0

	dedupText := func(text string) (string, bool) {
		reminders := reminderPattern.FindAllString(text, -1)
		if len(reminders) == 0 {
			return text, false
		}
		changed := false
		for _, rem := range reminders {
			h := hashText(rem)
			if seen[h] {
				text = strings.Replace(text, rem, "", 1)
				changed = true
			} else {
				seen[h] = true
			}
		}
		if changed {
			text = strings.TrimSpace(excessNewlines.ReplaceAllString(text, "\n\n"))
		}
		return text, changed
	}

	for i, r := range seq {
		if r.IsParseError() {
			continue
		}

		if s, ok := r.ContentString(); ok {
			newText, changed := dedupText(s)
			if !changed {
				continue
			}
			if strings.TrimSpace(newText) == "" && !r.Kind().Protected() {
				actions = append(actions, Action{Type: ActionDrop, First: i, Last: i, Reason: "empty after reminder dedup"})
				dropped++
				continue
			}
			next, err := r.Set("message.content", newText)
			if err != nil || next.Size() >= r.Size() {
				continue
			}
			actions = append(actions, Action{Type: ActionReplace, First: i, Last: i, Replacement: next, Reason: "system-reminder-dedup"})
			continue
		}

		blocks := r.Blocks()
		if len(blocks) == 0 {
			continue
		}
		newBlocks := make([]any, 0, len(blocks))
		changed := false
		for _, b := range blocks {
			bt := record.BlockType(b)
			if bt != "text" && bt != "tool_result" {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			var text string
			var field string
			if bt == "text" {
				text, field = b.Get("text").String(), "text"
			} else if c := b.Get("content"); c.Type == gjson.String {
				text, field = c.Str, "content"
			}
			if text == "" {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			newText, blockChanged := dedupText(text)
			if !blockChanged {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			m := blockValue(b)
			m[field] = newText
			newBlocks = append(newBlocks, m)
			changed = true
		}

		if !changed {
			continue
		}
		next, err := r.WithBlocks(newBlocks)
		if err != nil {
			continue
		}
		if next.HasEmptyContent() && !r.Kind().Protected() {
			actions = append(actions, Action{Type: ActionDrop, First: i, Last: i, Reason: "empty after reminder dedup"})
			dropped++
			continue
		}
		if next.Size() >= r.Size() {
			continue
		}
		actions = append(actions, Action{Type: ActionReplace, First: i, Last: i, Replacement: next, Reason: "system-reminder-dedup"})
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("deduped system-reminders in %d records (%d dropped empty)", len(actions), dropped),
	}
}
