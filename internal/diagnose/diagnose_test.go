package diagnose

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/strategy"
)

func mk(t *testing.T, line string) record.Record {
	t.Helper()
	r := record.ParseLine([]byte(line))
	require.False(t, r.IsParseError())
	return r
}

func fixture(t *testing.T) record.Sequence {
	var seq record.Sequence
	for i := 0; i < 5; i++ {
		seq = append(seq, mk(t, fmt.Sprintf(`{"type":"progress","uuid":"p%d","message":{"content":"tick"}}`, i)))
	}
	seq = append(seq,
		mk(t, `{"type":"file-history-snapshot","uuid":"s1","messageId":"m1","snapshot":{}}`),
		mk(t, `{"type":"user","uuid":"u1","message":{"content":"hi <system-reminder>rule</system-reminder>"}}`),
		mk(t, `{"type":"assistant","uuid":"a1","message":{"content":[{"type":"thinking","thinking":"hm","signature":"sigsig"},{"type":"text","text":"ok"}]}}`),
		mk(t, fmt.Sprintf(`{"type":"user","uuid":"u2","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":%q}]}}`, strings.Repeat("o", 10_000))),
	)
	return seq
}

func TestAnalyze(t *testing.T) {
	seq := fixture(t)
	rep, err := Analyze(seq, strategy.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, len(seq), rep.TotalRecords)
	assert.Equal(t, seq.TotalBytes(), rep.TotalBytes)
	assert.Equal(t, 5, rep.ProgressTicks)
	assert.Equal(t, 1, rep.FileHistorySnaps)
	assert.Equal(t, 1, rep.ReminderTags)
	assert.Equal(t, 1, rep.ThinkingBlocks)
	assert.Equal(t, int64(6), rep.SignatureBytes)
	assert.Equal(t, 1, rep.OversizedResults)

	// The heaviest record is the oversized tool result.
	require.NotEmpty(t, rep.Heavy)
	assert.Equal(t, len(seq)-1, rep.Heavy[0].Index)

	// Kind breakdown sums to the total.
	var kindBytes int64
	for _, k := range rep.Kinds {
		kindBytes += k.Bytes
	}
	assert.Equal(t, rep.TotalBytes, kindBytes+int64(rep.TotalRecords))
}

func TestAnalyze_ProjectionsAreMeasured(t *testing.T) {
	seq := fixture(t)
	rep, err := Analyze(seq, strategy.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, rep.Projections, 3)
	byName := map[string]Projection{}
	for _, p := range rep.Projections {
		byName[p.Prescription] = p
	}

	// Projections are dry-run measurements, so they match an actual run.
	for _, rx := range strategy.PrescriptionNames() {
		names, _ := strategy.Prescription(rx)
		after, _, err := strategy.Run(seq, names, strategy.DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, rep.TotalBytes-after.TotalBytes(), byName[rx].BytesSaved, rx)
	}

	// Escalating tiers never save less.
	assert.GreaterOrEqual(t, byName["standard"].BytesSaved, byName["gentle"].BytesSaved)
	assert.GreaterOrEqual(t, byName["aggressive"].BytesSaved, byName["standard"].BytesSaved)
}

func TestAnalyze_Empty(t *testing.T) {
	rep, err := Analyze(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, rep.TotalRecords)
	assert.Len(t, rep.Projections, 3)
}
