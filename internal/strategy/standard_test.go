package strategy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/record"
)

func thinkingRecord(t *testing.T, id, thinking string) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"assistant","uuid":"%s","message":{"role":"assistant","content":[`+
			`{"type":"thinking","thinking":%q,"signature":"sig-abc"},`+
			`{"type":"text","text":"answer"}]}}`, id, thinking))
}

func TestThinkingBlocks_Remove(t *testing.T) {
	seq := record.Sequence{thinkingRecord(t, "a1", "long private reasoning")}
	out, report := runNamed(t, seq, "thinking-blocks")
	require.Len(t, out, 1)
	assert.Equal(t, 1, report.Results[0].Modified)

	blocks := out[0].Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "text", record.BlockType(blocks[0]))
	assert.Equal(t, "a1", out[0].UUID())
}

func TestThinkingBlocks_Truncate(t *testing.T) {
	long := strings.Repeat("x", 500)
	seq := record.Sequence{thinkingRecord(t, "a1", long)}

	cfg := DefaultConfig()
	cfg.ThinkingMode = "truncate"
	out, _, err := Run(seq, []string{"thinking-blocks"}, cfg)
	require.NoError(t, err)

	blocks := out[0].Blocks()
	require.Len(t, blocks, 2)
	got := blocks[0].Get("thinking").String()
	assert.Equal(t, strings.Repeat("x", 200)+"...[truncated]", got)
	assert.False(t, blocks[0].Get("signature").Exists())
}

func TestThinkingBlocks_SignatureOnly(t *testing.T) {
	seq := record.Sequence{thinkingRecord(t, "a1", "keep me")}

	cfg := DefaultConfig()
	cfg.ThinkingMode = "signature-only"
	out, _, err := Run(seq, []string{"thinking-blocks"}, cfg)
	require.NoError(t, err)

	blocks := out[0].Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "keep me", blocks[0].Get("thinking").String())
	assert.False(t, blocks[0].Get("signature").Exists())
}

func toolResultRecord(t *testing.T, id, toolUseID, content string) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"user","uuid":"%s","message":{"role":"user","content":[`+
			`{"type":"tool_result","tool_use_id":"%s","content":%q}]}}`, id, toolUseID, content))
}

func TestToolOutputTrim_Boundary(t *testing.T) {
	atLimit := strings.Repeat("a", 8192)
	overLimit := strings.Repeat("a", 8193)

	seq := record.Sequence{
		toolResultRecord(t, "r1", "t1", atLimit),
		toolResultRecord(t, "r2", "t2", overLimit),
	}
	out, report := runNamed(t, seq, "tool-output-trim")
	require.Len(t, out, 2)
	assert.Equal(t, 1, report.Results[0].Modified)

	// Exactly 8KiB is left alone; one byte more is trimmed.
	assert.Equal(t, atLimit, out[0].Get("message.content.0.content").String())
	trimmed := out[1].Get("message.content.0.content").String()
	assert.Less(t, len(trimmed), len(overLimit))
	assert.Contains(t, trimmed, "original 8193 bytes")
}

func TestToolOutputTrim_ManyLines(t *testing.T) {
	lines := make([]string, 150)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	content := strings.Join(lines, "\n")
	seq := record.Sequence{toolResultRecord(t, "r1", "t1", content)}

	out, _ := runNamed(t, seq, "tool-output-trim")
	trimmed := out[0].Get("message.content.0.content").String()
	assert.True(t, strings.HasPrefix(trimmed, "line 0\n"))
	assert.True(t, strings.HasSuffix(trimmed, "line 149"))
	assert.Contains(t, trimmed, "trimmed by cozempic")
	// First 50 and last 20 lines survive around the marker.
	assert.Contains(t, trimmed, "line 49\n")
	assert.Contains(t, trimmed, "line 130\n")
	assert.NotContains(t, trimmed, "line 75\n")
}

func toolUseRecord(t *testing.T, id, toolUseID, name, path string) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"assistant","uuid":"%s","message":{"role":"assistant","content":[`+
			`{"type":"tool_use","id":"%s","name":"%s","input":{"file_path":%q}}]}}`, id, toolUseID, name, path))
}

// Scenario: read at index 1, edit at index 2, read again at index 5. The
// first read's result is dropped; the later read survives.
func TestStaleReads(t *testing.T) {
	bigRead := strings.Repeat("content of the file\n", 50)
	seq := record.Sequence{
		toolUseRecord(t, "a1", "t-read1", "Read", "/x/y.py"),
		toolResultRecord(t, "r1", "t-read1", bigRead),
		toolUseRecord(t, "a2", "t-edit1", "Edit", "/x/y.py"),
		toolResultRecord(t, "r2", "t-edit1", "edited ok"),
		toolUseRecord(t, "a3", "t-read2", "Read", "/x/y.py"),
		toolResultRecord(t, "r3", "t-read2", bigRead),
	}

	out, report := runNamed(t, seq, "stale-reads")
	require.Len(t, out, 5)
	assert.Equal(t, 1, report.Results[0].Removed)

	for _, r := range out {
		assert.NotEqual(t, "r1", r.UUID(), "stale read result must be dropped")
	}
	// The fresh read result survives.
	found := false
	for _, r := range out {
		if r.UUID() == "r3" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStaleReads_PathWhitespaceTrimmed(t *testing.T) {
	seq := record.Sequence{
		toolUseRecord(t, "a1", "t1", "Read", " /x/y.py "),
		toolResultRecord(t, "r1", "t1", "data"),
		toolUseRecord(t, "a2", "t2", "Write", "/x/y.py"),
	}
	out, _ := runNamed(t, seq, "stale-reads")
	require.Len(t, out, 2)
}

func TestStaleReads_NoEditKeepsRead(t *testing.T) {
	seq := record.Sequence{
		toolUseRecord(t, "a1", "t1", "Read", "/x/y.py"),
		toolResultRecord(t, "r1", "t1", "data"),
	}
	out, report := runNamed(t, seq, "stale-reads")
	assert.Len(t, out, 2)
	assert.Empty(t, report.Results[0].Actions)
}

func TestSystemReminderDedup(t *testing.T) {
	reminder := "<system-reminder>remember the rules</system-reminder>"
	seq := record.Sequence{
		userMsg(t, "u1", "hello "+reminder),
		userMsg(t, "u2", "again "+reminder+" trailing"),
		userMsg(t, "u3", reminder),
	}

	out, report := runNamed(t, seq, "system-reminder-dedup")
	// u3 contained nothing but the duplicate reminder and is dropped.
	require.Len(t, out, 2)
	assert.Equal(t, 1, report.Results[0].Removed)

	first, _ := out[0].ContentString()
	assert.Contains(t, first, "system-reminder")
	second, _ := out[1].ContentString()
	assert.NotContains(t, second, "system-reminder")
	assert.Contains(t, second, "again")
	assert.Contains(t, second, "trailing")
}

func TestSystemReminderDedup_DistinctRemindersKept(t *testing.T) {
	seq := record.Sequence{
		userMsg(t, "u1", "<system-reminder>one</system-reminder>"),
		userMsg(t, "u2", "<system-reminder>two</system-reminder>"),
	}
	out, report := runNamed(t, seq, "system-reminder-dedup")
	assert.Len(t, out, 2)
	assert.Empty(t, report.Results[0].Actions)
}
