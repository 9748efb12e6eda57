package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/record"
)

func mk(t *testing.T, line string) record.Record {
	t.Helper()
	r := record.ParseLine([]byte(line))
	require.False(t, r.IsParseError(), "fixture must be valid JSON: %s", line)
	return r
}

func tick(t *testing.T, n int) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"progress","uuid":"tick-%d","parentUuid":"tick-%d","message":{"content":"step %d"}}`, n, n-1, n))
}

func userMsg(t *testing.T, id, text string) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"user","uuid":"%s","message":{"role":"user","content":%q}}`, id, text))
}

func runNamed(t *testing.T, seq record.Sequence, name string) (record.Sequence, *RunReport) {
	t.Helper()
	out, report, err := Run(seq, []string{name}, DefaultConfig())
	require.NoError(t, err)
	return out, report
}

func TestProgressCollapse_Run(t *testing.T) {
	seq := record.Sequence{
		userMsg(t, "u1", "start"),
		tick(t, 1),
		tick(t, 2),
		tick(t, 3),
		userMsg(t, "u2", "end"),
	}

	out, report := runNamed(t, seq, "progress-collapse")
	require.Len(t, out, 3)
	assert.Equal(t, 2, report.Results[0].Removed)

	synth := out[1]
	assert.Equal(t, record.KindProgressTick, synth.Kind())
	assert.Equal(t, int64(3), synth.Get("count").Int())
	assert.Equal(t, "tick-1", synth.UUID())
	assert.Equal(t, "tick-0", synth.ParentUUID())
}

func TestProgressCollapse_RunOfOneUntouched(t *testing.T) {
	seq := record.Sequence{
		userMsg(t, "u1", "start"),
		tick(t, 1),
		userMsg(t, "u2", "end"),
	}
	out, report := runNamed(t, seq, "progress-collapse")
	assert.Len(t, out, 3)
	assert.Empty(t, report.Results[0].Actions)
	assert.Zero(t, report.BytesSaved())
}

// Scenario: 10,000 records with a contiguous run of 6,000 ticks collapses
// to 4,001 records, the synthetic carrying count=6000 and the first tick's
// identifiers.
func TestProgressCollapse_LargeContiguousRun(t *testing.T) {
	seq := make(record.Sequence, 0, 10000)
	for i := 0; i < 2000; i++ {
		seq = append(seq, userMsg(t, fmt.Sprintf("pre-%d", i), "before"))
	}
	for i := 0; i < 6000; i++ {
		seq = append(seq, tick(t, i+1))
	}
	for i := 0; i < 2000; i++ {
		seq = append(seq, userMsg(t, fmt.Sprintf("post-%d", i), "after"))
	}
	require.Len(t, seq, 10000)

	out, _ := runNamed(t, seq, "progress-collapse")
	require.Len(t, out, 4001)

	synth := out[2000]
	assert.Equal(t, int64(6000), synth.Get("count").Int())
	assert.Equal(t, "tick-1", synth.UUID())
	assert.Equal(t, "tick-0", synth.ParentUUID())
}

func snapshot(t *testing.T, uuid, payload string) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"file-history-snapshot","uuid":"%s","timestamp":"2026-01-01T00:00:0%sZ","messageId":"snap-%s","snapshot":{"files":%q}}`,
		uuid, uuid[len(uuid)-1:], payload, payload))
}

// Scenario: alternating A B A B ... A snapshots collapse to the last copy
// of each distinct payload — exactly two survivors.
func TestFileHistoryDedup_AlternatingPayloads(t *testing.T) {
	var seq record.Sequence
	for i := 0; i < 50; i++ {
		payload := "A"
		if i%2 == 1 {
			payload = "B"
		}
		seq = append(seq, snapshot(t, fmt.Sprintf("s%d", i), payload))
	}

	out, report := runNamed(t, seq, "file-history-dedup")
	require.Len(t, out, 2)
	assert.Equal(t, 48, report.Results[0].Removed)

	// The survivors are the last A (index 48) and last B (index 49).
	assert.Equal(t, "s48", out[0].UUID())
	assert.Equal(t, "s49", out[1].UUID())
}

func TestFileHistoryDedup_DistinctPayloadsKept(t *testing.T) {
	seq := record.Sequence{
		snapshot(t, "s0", "A"),
		snapshot(t, "s1", "B"),
		snapshot(t, "s2", "C"),
	}
	out, _ := runNamed(t, seq, "file-history-dedup")
	assert.Len(t, out, 3)
}

func TestMetadataStrip(t *testing.T) {
	seq := record.Sequence{
		mk(t, `{"type":"assistant","uuid":"a1","costUSD":0.42,"durationMs":1200,"message":{"role":"assistant","usage":{"input_tokens":100,"output_tokens":5},"stop_reason":"end_turn","content":[{"type":"text","text":"hi"}]}}`),
		userMsg(t, "u1", "clean"),
	}

	out, report := runNamed(t, seq, "metadata-strip")
	require.Len(t, out, 2)
	assert.Equal(t, 1, report.Results[0].Modified)
	assert.Positive(t, report.BytesSaved())

	stripped := out[0]
	assert.False(t, stripped.Exists("message.usage"))
	assert.False(t, stripped.Exists("message.stop_reason"))
	assert.False(t, stripped.Exists("costUSD"))
	assert.False(t, stripped.Exists("durationMs"))
	assert.Equal(t, "a1", stripped.UUID())
	assert.Equal(t, "hi", stripped.Get("message.content.0.text").String())
}

func TestMetadataStrip_StripsProtectedKindsWithoutDropping(t *testing.T) {
	seq := record.Sequence{
		mk(t, `{"type":"summary","uuid":"sum1","costUSD":1.5,"summary":"the work"}`),
	}
	out, _ := runNamed(t, seq, "metadata-strip")
	require.Len(t, out, 1)
	assert.Equal(t, record.KindSummary, out[0].Kind())
	assert.False(t, out[0].Exists("costUSD"))
	assert.Equal(t, "the work", out[0].Get("summary").String())
}
