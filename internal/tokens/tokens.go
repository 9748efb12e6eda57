// Package tokens estimates how much of the host agent's context window a
// transcript occupies. Two methods: exact, from the usage counters on the
// last main-chain assistant record, and heuristic, a bytes/4 ceiling over
// the textual content of records that actually reach the context.
package tokens

import (
	"bytes"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/junaidtitan/cozempic/internal/record"
)

const (
	// ContextWindow is the fixed window all percentages are computed against.
	ContextWindow = 200_000

	// systemOverheadTokens approximates the system prompt and tool schemas
	// that occupy context before the first transcript record.
	systemOverheadTokens = 21_000

	// bytesPerToken is the heuristic divisor.
	bytesPerToken = 4
)

// Method identifies how an estimate was produced.
type Method string

const (
	MethodExact     Method = "exact"
	MethodHeuristic Method = "heuristic"
)

// Estimate is the result of estimating a sequence.
type Estimate struct {
	Total      int
	ContextPct float64
	Method     Method
}

// Usage holds the exact counters from an assistant record.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// Total is the cumulative context size: every input component summed.
func (u Usage) Total() int {
	return u.InputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// ExtractUsage walks backwards for the last main-chain assistant record
// carrying usage counters. Returns false when none exists.
func ExtractUsage(seq record.Sequence) (Usage, bool) {
	for i := len(seq) - 1; i >= 0; i-- {
		r := seq[i]
		if r.IsParseError() || r.IsSidechain() {
			continue
		}
		if r.Get("type").String() != "assistant" {
			continue
		}
		usage := r.Get("message.usage")
		if !usage.IsObject() {
			continue
		}
		return Usage{
			InputTokens:         int(usage.Get("input_tokens").Int()),
			OutputTokens:        int(usage.Get("output_tokens").Int()),
			CacheCreationTokens: int(usage.Get("cache_creation_input_tokens").Int()),
			CacheReadTokens:     int(usage.Get("cache_read_input_tokens").Int()),
		}, true
	}
	return Usage{}, false
}

// countsTowardContext reports whether a record contributes to the main
// context window. Progress ticks, snapshots, sidechain records, and
// pure-thinking assistant turns do not.
func countsTowardContext(r record.Record) bool {
	switch r.Kind() {
	case record.KindProgressTick, record.KindFileHistorySnapshot:
		return false
	}
	if r.IsSidechain() {
		return false
	}
	if r.Get("type").String() == "assistant" {
		blocks := r.Blocks()
		if len(blocks) > 0 {
			hasOutput := false
			for _, b := range blocks {
				switch record.BlockType(b) {
				case "text", "tool_use", "tool_result":
					hasOutput = true
				}
			}
			if !hasOutput {
				return false
			}
		}
	}
	return true
}

// contentBytes measures the textual payload of a record for the heuristic.
// Thinking blocks are ephemeral and excluded.
func contentBytes(r record.Record) int {
	if s, ok := r.ContentString(); ok {
		return len(s)
	}
	n := 0
	for _, b := range r.Blocks() {
		switch record.BlockType(b) {
		case "thinking":
			continue
		case "tool_use", "tool_result":
			n += record.BlockSize(b)
		default:
			n += len(record.BlockText(b))
		}
	}
	return n
}

// EstimateHeuristic returns ceil(content bytes / 4) plus system overhead.
func EstimateHeuristic(seq record.Sequence) int {
	total := 0
	for _, r := range seq {
		if r.IsParseError() || !countsTowardContext(r) {
			continue
		}
		total += contentBytes(r)
	}
	return (total+bytesPerToken-1)/bytesPerToken + systemOverheadTokens
}

// EstimateSequence prefers exact usage and falls back to the heuristic.
func EstimateSequence(seq record.Sequence) Estimate {
	if usage, ok := ExtractUsage(seq); ok {
		total := usage.Total()
		return Estimate{
			Total:      total,
			ContextPct: pct(total),
			Method:     MethodExact,
		}
	}
	total := EstimateHeuristic(seq)
	return Estimate{Total: total, ContextPct: pct(total), Method: MethodHeuristic}
}

func pct(total int) float64 {
	return float64(total) / float64(ContextWindow) * 100
}

// quickTailBytes is how much of the file tail QuickEstimate reads.
const quickTailBytes = 50 * 1024

// QuickEstimate reads only the tail of a transcript file and extracts the
// usage total from the last assistant record found there. Returns false when
// the tail holds no usage data. Used by listing commands that must stay fast
// over many large files.
func QuickEstimate(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false
	}
	readSize := info.Size()
	offset := int64(0)
	if readSize > quickTailBytes {
		offset = readSize - quickTailBytes
		readSize = quickTailBytes
	}
	buf := make([]byte, readSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return 0, false
	}

	lines := bytes.Split(buf, []byte("\n"))
	// The first line may be partial after a seek.
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:]
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		if gjson.GetBytes(line, "type").String() != "assistant" {
			continue
		}
		if gjson.GetBytes(line, "isSidechain").Bool() {
			continue
		}
		usage := gjson.GetBytes(line, "message.usage")
		if !usage.IsObject() {
			continue
		}
		total := int(usage.Get("input_tokens").Int()) +
			int(usage.Get("cache_creation_input_tokens").Int()) +
			int(usage.Get("cache_read_input_tokens").Int())
		return total, true
	}
	return 0, false
}

// CalibrateRatio computes the observed bytes-per-token ratio of a sequence
// that has exact usage data. Returns false when calibration is impossible.
func CalibrateRatio(seq record.Sequence) (float64, bool) {
	usage, ok := ExtractUsage(seq)
	if !ok {
		return 0, false
	}
	contentTokens := usage.Total() - systemOverheadTokens
	if contentTokens <= 0 {
		return 0, false
	}
	totalBytes := 0
	for _, r := range seq {
		if r.IsParseError() || !countsTowardContext(r) {
			continue
		}
		totalBytes += contentBytes(r)
	}
	if totalBytes == 0 {
		return 0, false
	}
	return float64(totalBytes) / float64(contentTokens), true
}

// FormatCount renders a token count the way the CLI displays it.
func FormatCount(t int) string {
	switch {
	case t < 1000:
		return fmt.Sprintf("%d", t)
	case t < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(t)/1000)
	default:
		return fmt.Sprintf("%.2fM", float64(t)/1_000_000)
	}
}
