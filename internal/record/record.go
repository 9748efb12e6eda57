// Package record models one line of a Claude Code session transcript as an
// opaque JSON record. Records keep their original bytes; reads go through
// gjson paths and edits through sjson, so fields the tool does not know
// about survive a rewrite byte-for-byte.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind is the derived classification of a record. Classification is a pure
// function of the record's structural fields and is computed at parse time.
type Kind string

const (
	KindUser                Kind = "user"
	KindAssistant           Kind = "assistant"
	KindSystem              Kind = "system"
	KindToolUse             Kind = "tool_use"
	KindToolResult          Kind = "tool_result"
	KindSummary             Kind = "summary"
	KindQueueOperation      Kind = "queue_operation"
	KindFileHistorySnapshot Kind = "file_history_snapshot"
	KindProgressTick        Kind = "progress_tick"
	KindTaskNotification    Kind = "task_notification"
	KindUnknown             Kind = "unknown"
)

// Protected reports whether records of this kind may never be dropped.
func (k Kind) Protected() bool {
	return k == KindSummary || k == KindQueueOperation
}

// Record is one transcript line. The zero value is not usable; construct
// through ParseLine or NewSynthetic.
type Record struct {
	raw       []byte
	kind      Kind
	parseErr  bool
	synthetic bool
}

// ParseLine builds a Record from one transcript line. Malformed JSON yields
// a placeholder of kind unknown that retains the original text so a rewrite
// never loses data it could not parse.
func ParseLine(line []byte) Record {
	trimmed := bytes.TrimSpace(line)
	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)

	if !gjson.ValidBytes(raw) {
		return Record{raw: raw, kind: KindUnknown, parseErr: true}
	}
	return Record{raw: raw, kind: classify(raw)}
}

// NewSynthetic builds a Record the tool created itself. Keys are serialized
// in stable (sorted) order.
func NewSynthetic(fields map[string]any) (Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling synthetic record: %w", err)
	}
	return Record{raw: raw, kind: classify(raw), synthetic: true}, nil
}

// MustSynthetic is NewSynthetic for values known to marshal.
func MustSynthetic(fields map[string]any) Record {
	r, err := NewSynthetic(fields)
	if err != nil {
		panic(err)
	}
	return r
}

// Bytes returns the record's current serialized form, without trailing newline.
func (r Record) Bytes() []byte { return r.raw }

// Size is the serialized byte length.
func (r Record) Size() int { return len(r.raw) }

// Kind returns the derived classification.
func (r Record) Kind() Kind { return r.kind }

// IsParseError reports whether this record is a placeholder for a line that
// failed to parse.
func (r Record) IsParseError() bool { return r.parseErr }

// IsSynthetic reports whether cozempic created this record.
func (r Record) IsSynthetic() bool { return r.synthetic }

// UUID returns the record's uuid field, or "" when absent.
func (r Record) UUID() string { return r.Get("uuid").String() }

// ParentUUID returns the record's parentUuid field, or "" when absent.
func (r Record) ParentUUID() string { return r.Get("parentUuid").String() }

// SessionID returns the record's sessionId field.
func (r Record) SessionID() string { return r.Get("sessionId").String() }

// IsSidechain reports whether the record belongs to a subagent sidechain.
func (r Record) IsSidechain() bool { return r.Get("isSidechain").Bool() }

// Get reads an arbitrary gjson path. Absent fields return a null Result.
func (r Record) Get(path string) gjson.Result {
	if r.parseErr {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.raw, path)
}

// Exists reports whether the path is present.
func (r Record) Exists(path string) bool { return r.Get(path).Exists() }

// Set returns a copy of the record with the path set to value.
func (r Record) Set(path string, value any) (Record, error) {
	if r.parseErr {
		return r, fmt.Errorf("cannot edit unparsed record")
	}
	raw, err := sjson.SetBytes(r.raw, path, value)
	if err != nil {
		return r, fmt.Errorf("setting %s: %w", path, err)
	}
	return Record{raw: raw, kind: classify(raw), synthetic: r.synthetic}, nil
}

// Delete returns a copy of the record with the path removed, and whether
// anything changed.
func (r Record) Delete(path string) (Record, bool) {
	if r.parseErr || !r.Exists(path) {
		return r, false
	}
	raw, err := sjson.DeleteBytes(r.raw, path)
	if err != nil {
		return r, false
	}
	return Record{raw: raw, kind: classify(raw), synthetic: r.synthetic}, true
}

// classify derives the record kind from structural fields. The same input
// always classifies to the same kind.
func classify(raw []byte) Kind {
	switch gjson.GetBytes(raw, "type").String() {
	case "summary":
		return KindSummary
	case "progress":
		return KindProgressTick
	case "file-history-snapshot":
		return KindFileHistorySnapshot
	case "queue-operation":
		return KindQueueOperation
	case "system":
		return KindSystem
	case "user":
		content := gjson.GetBytes(raw, "message.content")
		if content.Type == gjson.String && strings.Contains(content.Str, "<task-notification>") {
			return KindTaskNotification
		}
		if hasBlockOfType(raw, "tool_result") {
			return KindToolResult
		}
		return KindUser
	case "assistant":
		if hasBlockOfType(raw, "tool_use") {
			return KindToolUse
		}
		return KindAssistant
	case "":
		return KindUnknown
	default:
		return KindUnknown
	}
}

func hasBlockOfType(raw []byte, blockType string) bool {
	found := false
	gjson.GetBytes(raw, "message.content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == blockType {
			found = true
			return false
		}
		return true
	})
	return found
}

// Sequence is an ordered run of records.
type Sequence []Record

// TotalBytes sums the serialized sizes, one newline per record included.
func (s Sequence) TotalBytes() int64 {
	var n int64
	for _, r := range s {
		n += int64(r.Size()) + 1
	}
	return n
}

// Kinds counts records per kind.
func (s Sequence) Kinds() map[Kind]int {
	m := make(map[Kind]int)
	for _, r := range s {
		m[r.Kind()]++
	}
	return m
}
