package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/junaidtitan/cozempic/internal/record"
)

// hashText returns the hex SHA-256 of s.
func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// blockValue decodes a gjson block into a mutable map. gjson decodes a
// fresh value on every call, so the map is safe to edit.
func blockValue(b gjson.Result) map[string]any {
	if m, ok := b.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// recordText joins all textual content of a record, covering both string
// content and block arrays.
func recordText(r record.Record) string {
	if s, ok := r.ContentString(); ok {
		return s
	}
	var parts []string
	for _, b := range r.Blocks() {
		if t := record.BlockText(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// trimHeadTail keeps the first head and last tail lines of text, splicing a
// marker between them. When the text has too few lines to benefit, it falls
// back to a byte window so single-line payloads still shrink.
func trimHeadTail(text string, head, tail int, marker string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > head+tail {
		kept := make([]string, 0, head+tail+1)
		kept = append(kept, lines[:head]...)
		kept = append(kept, marker)
		kept = append(kept, lines[len(lines)-tail:]...)
		return strings.Join(kept, "\n")
	}
	// Few lines but heavy bytes: byte windows proportional to the line
	// windows (head lines : tail lines).
	headBytes := 4096 * head / 50
	tailBytes := 4096 * tail / 50
	if len(text) <= headBytes+tailBytes {
		return text
	}
	return text[:headBytes] + "\n" + marker + "\n" + text[len(text)-tailBytes:]
}

// canonicalPayload serializes a decoded JSON value with sorted keys, the
// form used for payload-identity hashing.
func canonicalPayload(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

// toolUseBlocks yields the tool_use blocks of a record.
func toolUseBlocks(r record.Record) []gjson.Result {
	var out []gjson.Result
	for _, b := range r.Blocks() {
		if record.BlockType(b) == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

// toolResultBlocks yields the tool_result blocks of a record.
func toolResultBlocks(r record.Record) []gjson.Result {
	var out []gjson.Result
	for _, b := range r.Blocks() {
		if record.BlockType(b) == "tool_result" {
			out = append(out, b)
		}
	}
	return out
}

// synthSystemNote builds a synthetic collapse-summary record carrying the
// identifiers of the record whose slot it takes.
func synthSystemNote(first record.Record, note string) record.Record {
	fields := map[string]any{
		"type":    "system",
		"subtype": "cozempic_collapse",
		"content": note,
	}
	if u := first.UUID(); u != "" {
		fields["uuid"] = u
	}
	if p := first.ParentUUID(); p != "" {
		fields["parentUuid"] = p
	}
	if s := first.SessionID(); s != "" {
		fields["sessionId"] = s
	}
	return record.MustSynthetic(fields)
}
