package record

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Blocks returns the record's content blocks, in order. String content and
// absent content yield an empty slice; use ContentString for the former.
func (r Record) Blocks() []gjson.Result {
	content := r.Get("message.content")
	if !content.IsArray() {
		return nil
	}
	return content.Array()
}

// ContentString returns message.content when it is a plain string.
func (r Record) ContentString() (string, bool) {
	content := r.Get("message.content")
	if content.Type == gjson.String {
		return content.Str, true
	}
	return "", false
}

// WithBlocks returns a copy of the record with message.content replaced by
// the given block values (each a decoded JSON value, e.g. block.Value() or a
// map built by a strategy).
func (r Record) WithBlocks(blocks []any) (Record, error) {
	return r.Set("message.content", blocks)
}

// BlockText extracts the human-readable text of a content block: text,
// thinking, string tool_result content, or the joined text of nested
// content parts.
func BlockText(block gjson.Result) string {
	if t := block.Get("text"); t.Type == gjson.String {
		return t.Str
	}
	if t := block.Get("thinking"); t.Type == gjson.String {
		return t.Str
	}
	content := block.Get("content")
	switch {
	case content.Type == gjson.String:
		return content.Str
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, sub gjson.Result) bool {
			if t := sub.Get("text"); t.Type == gjson.String {
				parts = append(parts, t.Str)
			}
			return true
		})
		return strings.Join(parts, " ")
	}
	return ""
}

// BlockSize is the serialized byte length of a block.
func BlockSize(block gjson.Result) int {
	return len(block.Raw)
}

// BlockType returns the block's type field.
func BlockType(block gjson.Result) string {
	return block.Get("type").String()
}

// HasEmptyContent reports whether every block in the record carries no text
// and the record has no string content. Used to drop records hollowed out by
// block-level dedup.
func (r Record) HasEmptyContent() bool {
	if s, ok := r.ContentString(); ok {
		return strings.TrimSpace(s) == ""
	}
	blocks := r.Blocks()
	if len(blocks) == 0 {
		return !r.Get("message.content").Exists()
	}
	for _, b := range blocks {
		if strings.TrimSpace(BlockText(b)) != "" {
			return false
		}
		switch BlockType(b) {
		case "tool_use", "image", "document":
			return false
		}
	}
	return true
}
