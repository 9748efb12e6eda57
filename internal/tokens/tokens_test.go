package tokens

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/record"
)

func mk(t *testing.T, line string) record.Record {
	t.Helper()
	r := record.ParseLine([]byte(line))
	require.False(t, r.IsParseError())
	return r
}

func assistantWithUsage(t *testing.T, id string, input, cacheCreate, cacheRead int) record.Record {
	return mk(t, fmt.Sprintf(
		`{"type":"assistant","uuid":"%s","message":{"role":"assistant","usage":{"input_tokens":%d,"output_tokens":9,"cache_creation_input_tokens":%d,"cache_read_input_tokens":%d},"content":[{"type":"text","text":"done"}]}}`,
		id, input, cacheCreate, cacheRead))
}

func TestExtractUsage_LastMainChainWins(t *testing.T) {
	seq := record.Sequence{
		assistantWithUsage(t, "a1", 100, 0, 0),
		assistantWithUsage(t, "a2", 200, 50, 1000),
		mk(t, `{"type":"assistant","uuid":"a3","isSidechain":true,"message":{"usage":{"input_tokens":9999},"content":[{"type":"text","text":"sub"}]}}`),
	}

	usage, ok := ExtractUsage(seq)
	require.True(t, ok)
	assert.Equal(t, 200, usage.InputTokens)
	assert.Equal(t, 1250, usage.Total())
}

func TestExtractUsage_NoneFound(t *testing.T) {
	seq := record.Sequence{
		mk(t, `{"type":"user","message":{"content":"hi"}}`),
	}
	_, ok := ExtractUsage(seq)
	assert.False(t, ok)
}

func TestEstimateSequence_PrefersExact(t *testing.T) {
	seq := record.Sequence{assistantWithUsage(t, "a1", 150_000, 0, 0)}
	est := EstimateSequence(seq)
	assert.Equal(t, MethodExact, est.Method)
	assert.Equal(t, 150_000, est.Total)
	assert.InDelta(t, 75.0, est.ContextPct, 0.01)
}

func TestEstimateSequence_HeuristicFallback(t *testing.T) {
	body := strings.Repeat("words and code ", 1000)
	seq := record.Sequence{
		mk(t, fmt.Sprintf(`{"type":"user","message":{"content":%q}}`, body)),
	}
	est := EstimateSequence(seq)
	assert.Equal(t, MethodHeuristic, est.Method)
	want := (len(body)+3)/4 + 21_000
	assert.Equal(t, want, est.Total)
}

func TestHeuristic_ExcludesNonContextRecords(t *testing.T) {
	big := strings.Repeat("x", 4000)
	base := record.Sequence{
		mk(t, fmt.Sprintf(`{"type":"user","message":{"content":%q}}`, big)),
	}
	baseline := EstimateHeuristic(base)

	withNoise := append(record.Sequence{}, base...)
	withNoise = append(withNoise,
		mk(t, fmt.Sprintf(`{"type":"progress","message":{"content":%q}}`, big)),
		mk(t, fmt.Sprintf(`{"type":"file-history-snapshot","messageId":"m","snapshot":%q}`, big)),
		mk(t, fmt.Sprintf(`{"type":"user","isSidechain":true,"message":{"content":%q}}`, big)),
		// Pure-thinking assistant turn.
		mk(t, fmt.Sprintf(`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":%q}]}}`, big)),
	)
	assert.Equal(t, baseline, EstimateHeuristic(withNoise))
}

func TestQuickEstimate_ReadsTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")

	var b strings.Builder
	// Enough leading noise that the tail read has to seek.
	filler := strings.Repeat("z", 1024)
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, `{"type":"user","message":{"content":%q}}`+"\n", filler)
	}
	fmt.Fprintf(&b, `{"type":"assistant","message":{"usage":{"input_tokens":111,"cache_creation_input_tokens":22,"cache_read_input_tokens":3000},"content":[{"type":"text","text":"end"}]}}`+"\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	total, ok := QuickEstimate(path)
	require.True(t, ok)
	assert.Equal(t, 111+22+3000, total)
}

func TestQuickEstimate_NoUsage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"user","message":{"content":"hi"}}`+"\n"), 0o600))
	_, ok := QuickEstimate(path)
	assert.False(t, ok)
}

func TestCalibrateRatio(t *testing.T) {
	body := strings.Repeat("b", 40_000)
	seq := record.Sequence{
		mk(t, fmt.Sprintf(`{"type":"user","message":{"content":%q}}`, body)),
		assistantWithUsage(t, "a1", 31_000, 0, 0),
	}
	ratio, ok := CalibrateRatio(seq)
	require.True(t, ok)
	// 31000 total - 21000 overhead = 10000 content tokens over ~40KB.
	assert.InDelta(t, 4.0, ratio, 0.1)
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "512", FormatCount(512))
	assert.Equal(t, "1.5K", FormatCount(1500))
	assert.Equal(t, "2.25M", FormatCount(2_250_000))
}
