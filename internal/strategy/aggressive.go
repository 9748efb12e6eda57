package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/junaidtitan/cozempic/internal/record"
)

func init() {
	register(Info{
		Name:            "http-spam",
		Tier:            TierAggressive,
		Description:     "Collapse runs of HTTP request/response records",
		ExpectedSavings: "0-2%",
		Run:             httpSpam,
	})
	register(Info{
		Name:            "error-retry-collapse",
		Tier:            TierAggressive,
		Description:     "Collapse identical error/retry sequences",
		ExpectedSavings: "0-5%",
		Run:             errorRetryCollapse,
	})
	register(Info{
		Name:            "background-poll-collapse",
		Tier:            TierAggressive,
		Description:     "Collapse repeated background polling records",
		ExpectedSavings: "0-1%",
		Run:             backgroundPollCollapse,
	})
	register(Info{
		Name:            "document-dedup",
		Tier:            TierAggressive,
		Description:     "Replace repeated large document blocks with stubs",
		ExpectedSavings: "0-44%",
		Run:             documentDedup,
	})
	register(Info{
		Name:            "mega-block-trim",
		Tier:            TierAggressive,
		Description:     "Safety net: trim any content block over 32KiB",
		ExpectedSavings: "safety net",
		Run:             megaBlockTrim,
	})
	register(Info{
		Name:            "envelope-strip",
		Tier:            TierAggressive,
		Description:     "Hoist constant envelope fields into one header record",
		ExpectedSavings: "2-4%",
		Run:             envelopeStrip,
	})
}

var httpToolNames = map[string]bool{
	"WebFetch": true, "WebSearch": true, "webfetch": true, "websearch": true,
}

// httpRequestSentinel matches the host agent's HTTP request log lines.
var httpRequestSentinel = regexp.MustCompile(`(?m)^(?:GET|POST|PUT|DELETE|HEAD) https?://`)

// httpSpam collapses runs of three or more consecutive HTTP-traffic records
// (WebFetch/WebSearch calls, their results, and interleaved progress ticks)
// into one synthetic summary, the same shape progress-collapse produces.
func httpSpam(seq record.Sequence, _ *Config) Result {
	httpish := make([]bool, len(seq))
	pendingHTTP := map[string]bool{}

	for i, r := range seq {
		for _, b := range toolUseBlocks(r) {
			if httpToolNames[b.Get("name").String()] {
				httpish[i] = true
				if id := b.Get("id").String(); id != "" {
					pendingHTTP[id] = true
				}
			}
		}
		for _, b := range toolResultBlocks(r) {
			if pendingHTTP[b.Get("tool_use_id").String()] {
				httpish[i] = true
			}
		}
		if !httpish[i] && httpRequestSentinel.MatchString(recordText(r)) {
			httpish[i] = true
		}
	}

	inRun := func(i int) bool {
		return httpish[i] || seq[i].Kind() == record.KindProgressTick
	}

	var actions []Action
	i := 0
	for i < len(seq) {
		if !httpish[i] {
			i++
			continue
		}
		j := i
		httpCount := 0
		for j < len(seq) && inRun(j) {
			if httpish[j] {
				httpCount++
			}
			j++
		}
		// Trailing progress ticks belong to the next run, not this one.
		for j > i && !httpish[j-1] {
			j--
		}
		if httpCount >= 3 {
			note := fmt.Sprintf("[%d HTTP request records collapsed; last: %s]",
				j-i, firstLine(recordText(seq[j-1])))
			actions = append(actions, Action{
				Type:        ActionReplaceRange,
				First:       i,
				Last:        j - 1,
				Replacement: synthSystemNote(seq[i], note),
				Reason:      fmt.Sprintf("run of %d HTTP records", j-i),
			})
		}
		i = j
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("collapsed %d HTTP spam runs", len(actions)),
	}
}

// errorSignature hashes the identifying content of an error tool_result, or
// returns "" when the record carries no error.
func errorSignature(r record.Record) string {
	for _, b := range toolResultBlocks(r) {
		if !b.Get("is_error").Bool() {
			continue
		}
		text := record.BlockText(b)
		if len(text) > 200 {
			text = text[:200]
		}
		return hashText(strings.Join(strings.Fields(text), " "))
	}
	return ""
}

// retryKey hashes the tool name and input of the first tool_use in a record,
// used to recognize identical retry attempts.
func retryKey(r record.Record) string {
	for _, b := range toolUseBlocks(r) {
		return hashText(b.Get("name").String() + "\x00" + b.Get("input").Raw)
	}
	return ""
}

// errorRetryCollapse replaces an error followed by identical retry attempts
// with one synthetic record stating the attempt count and final outcome.
func errorRetryCollapse(seq record.Sequence, _ *Config) Result {
	var actions []Action

	i := 0
	for i < len(seq) {
		sig := errorSignature(seq[i])
		if sig == "" {
			i++
			continue
		}

		// The retried call is the tool_use immediately preceding the first
		// error; identical calls inside the run are recognized by its key.
		var callKey string
		if i > 0 {
			callKey = retryKey(seq[i-1])
		}

		attempts := 1
		j := i + 1
		for j < len(seq) {
			switch {
			case errorSignature(seq[j]) == sig:
				attempts++
				j++
			case callKey != "" && retryKey(seq[j]) == callKey && j+1 < len(seq) && errorSignature(seq[j+1]) == sig:
				j++
			case seq[j].Kind() == record.KindProgressTick && j+1 < len(seq) &&
				(errorSignature(seq[j+1]) == sig || retryKey(seq[j+1]) == callKey):
				j++
			default:
				goto runEnd
			}
		}
	runEnd:
		if attempts >= 2 {
			finalText := firstLine(recordText(seq[j-1]))
			note := fmt.Sprintf("[%d identical failed attempts collapsed; final error: %s]", attempts, finalText)
			actions = append(actions, Action{
				Type:        ActionReplaceRange,
				First:       i,
				Last:        j - 1,
				Replacement: synthSystemNote(seq[i], note),
				Reason:      fmt.Sprintf("%d retries with identical error", attempts),
			})
		}
		i = j
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("collapsed %d error-retry runs", len(actions)),
	}
}

// isPollRecord reports whether a record is a background-status poll: a
// TaskOutput call with block=false, or its result.
func isPollRecord(r record.Record, pendingPoll map[string]bool) bool {
	for _, b := range toolUseBlocks(r) {
		if name := b.Get("name").String(); name == "TaskOutput" || name == "taskoutput" {
			blockArg := b.Get("input.block")
			if !blockArg.Exists() || !blockArg.Bool() {
				if id := b.Get("id").String(); id != "" {
					pendingPoll[id] = true
				}
				return true
			}
		}
	}
	for _, b := range toolResultBlocks(r) {
		if pendingPoll[b.Get("tool_use_id").String()] {
			return true
		}
	}
	return false
}

// backgroundPollCollapse collapses consecutive background-poll records (and
// interleaved progress ticks) with no intervening user turn into one summary
// record. Queue-operation records are protected and left in place.
func backgroundPollCollapse(seq record.Sequence, _ *Config) Result {
	pendingPoll := map[string]bool{}
	poll := make([]bool, len(seq))
	for i, r := range seq {
		poll[i] = isPollRecord(r, pendingPoll)
	}

	var actions []Action
	i := 0
	for i < len(seq) {
		if !poll[i] {
			i++
			continue
		}
		j := i
		pollCount := 0
		for j < len(seq) && (poll[j] || seq[j].Kind() == record.KindProgressTick) {
			if poll[j] {
				pollCount++
			}
			j++
		}
		for j > i && !poll[j-1] {
			j--
		}
		if pollCount >= 2 {
			note := fmt.Sprintf("[%d background poll records collapsed; last: %s]",
				j-i, firstLine(recordText(seq[j-1])))
			actions = append(actions, Action{
				Type:        ActionReplaceRange,
				First:       i,
				Last:        j - 1,
				Replacement: synthSystemNote(seq[i], note),
				Reason:      fmt.Sprintf("run of %d poll records", j-i),
			})
		}
		i = j
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("collapsed %d background poll runs", len(actions)),
	}
}

// documentDedup replaces later copies of any large duplicated block
// (document, text, or string tool_result) with a short stub referencing the
// record index of the first copy. Identity is the SHA-256 of the canonical
// payload.
func documentDedup(seq record.Sequence, cfg *Config) Result {
	minBytes := cfg.DocumentDedupMinBytes

	payloadOf := func(b gjson.Result) string {
		switch record.BlockType(b) {
		case "document":
			if src := b.Get("source"); src.Exists() {
				return src.Raw
			}
			return b.Raw
		case "text":
			return b.Get("text").String()
		case "tool_result":
			if c := b.Get("content"); c.Type == gjson.String {
				return c.Str
			}
		}
		return ""
	}

	type firstSeen struct{ recordIdx int }
	seen := map[string]firstSeen{}
	// dupBlocks[recordIdx] = block positions to stub, with their first-seen index.
	type dup struct {
		blockIdx int
		firstIdx int
		preview  string
	}
	dups := map[int][]dup{}

	for i, r := range seq {
		for bi, b := range r.Blocks() {
			payload := payloadOf(b)
			if len(payload) < minBytes {
				continue
			}
			h := hashText(payload)
			if fs, ok := seen[h]; ok {
				preview := strings.ReplaceAll(record.BlockText(b), "\n", " ")
				if len(preview) > 60 {
					preview = preview[:60]
				}
				dups[i] = append(dups[i], dup{blockIdx: bi, firstIdx: fs.recordIdx, preview: preview})
			} else {
				seen[h] = firstSeen{recordIdx: i}
			}
		}
	}

	var actions []Action
	stubbed := 0
	for i, dd := range dups {
		r := seq[i]
		blocks := r.Blocks()
		newBlocks := make([]any, 0, len(blocks))
		byBlock := map[int]dup{}
		for _, d := range dd {
			byBlock[d.blockIdx] = d
		}
		for bi, b := range blocks {
			d, isDup := byBlock[bi]
			if !isDup {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			stub := fmt.Sprintf("[duplicate content removed by cozempic; identical to record %d: %s...]",
				d.firstIdx, d.preview)
			if record.BlockType(b) == "tool_result" {
				m := blockValue(b)
				m["content"] = stub
				newBlocks = append(newBlocks, m)
			} else {
				newBlocks = append(newBlocks, map[string]any{"type": "text", "text": stub})
			}
			stubbed++
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
			Reason:      "document-dedup",
		})
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("stubbed %d duplicate blocks in %d records", stubbed, len(actions)),
	}
}

const (
	megaTrimHeadLines = 80
	megaTrimTailLines = 30
)

// megaBlockTrim is the safety net: any single content block still larger
// than the ceiling after every earlier strategy ran gets a head/tail trim.
// Summary and queue-operation records are left alone.
func megaBlockTrim(seq record.Sequence, cfg *Config) Result {
	maxBytes := cfg.MegaBlockMaxBytes
	var actions []Action

	for i, r := range seq {
		if r.Kind().Protected() || r.IsParseError() {
			continue
		}
		blocks := r.Blocks()
		if len(blocks) == 0 {
			continue
		}

		newBlocks := make([]any, 0, len(blocks))
		changed := false
		for _, b := range blocks {
			if record.BlockSize(b) <= maxBytes {
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			text := record.BlockText(b)
			if len(text) <= maxBytes || strings.Contains(text, "trimmed by cozempic") {
				// Oversized but not textual (images, base64 documents), or
				// already the product of an earlier trim.
				newBlocks = append(newBlocks, b.Value())
				continue
			}
			trimmed := trimHeadTail(text, megaTrimHeadLines, megaTrimTailLines,
				fmt.Sprintf("... [block trimmed by cozempic; original %d bytes] ...", len(text)))
			m := blockValue(b)
			switch record.BlockType(b) {
			case "thinking":
				m["thinking"] = trimmed
			case "text":
				m["text"] = trimmed
			case "tool_result":
				if _, isStr := m["content"].(string); isStr {
					m["content"] = trimmed
				} else {
					newBlocks = append(newBlocks, b.Value())
					continue
				}
			default:
				newBlocks = append(newBlocks, b.Value())
				continue
			}
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
			Reason:      "mega-block-trim",
		})
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("trimmed %d mega blocks (>%dKiB)", len(actions), maxBytes/1024),
	}
}

// envelopeHeaderID marks the synthetic header record envelope-strip creates.
const envelopeHeaderID = "cozempic-envelope"

var envelopeFields = []string{"cwd", "version", "gitBranch", "slug", "userType"}

// envelopeStrip removes envelope fields whose value is constant across every
// record that carries them, recording the constants in a single synthetic
// header at the top of the transcript. Re-running is a no-op: once stripped,
// the fields appear in no record, so no constants are found.
func envelopeStrip(seq record.Sequence, _ *Config) Result {
	values := map[string]map[string]int{}
	for _, r := range seq {
		if r.IsParseError() {
			continue
		}
		for _, f := range envelopeFields {
			if v := r.Get(f); v.Exists() {
				if values[f] == nil {
					values[f] = map[string]int{}
				}
				values[f][v.String()]++
			}
		}
	}

	constants := map[string]string{}
	for f, vals := range values {
		if len(vals) != 1 {
			continue
		}
		for v := range vals {
			constants[f] = v
		}
	}
	if len(constants) == 0 {
		return Result{Summary: "no constant envelope fields found"}
	}

	var actions []Action
	hasHeader := len(seq) > 0 && seq[0].Get("messageId").String() == envelopeHeaderID
	start := 0
	if hasHeader {
		start = 1
	}
	for i := start; i < len(seq); i++ {
		r := seq[i]
		if r.IsParseError() {
			continue
		}
		next := r
		changed := false
		for f := range constants {
			var did bool
			next, did = next.Delete(f)
			changed = changed || did
		}
		if changed {
			actions = append(actions, Action{
				Type:        ActionReplace,
				First:       i,
				Last:        i,
				Replacement: next,
				Reason:      "envelope-strip",
			})
		}
	}

	res := Result{
		Actions: actions,
		Summary: fmt.Sprintf("hoisted %d constant envelope fields from %d records", len(constants), len(actions)),
	}

	if hasHeader {
		// Merge new constants into the existing header in place.
		next := seq[0]
		for f, v := range constants {
			var err error
			next, err = next.Set("envelope."+f, v)
			if err != nil {
				return res
			}
		}
		res.Actions = append([]Action{{
			Type:        ActionReplace,
			First:       0,
			Last:        0,
			Replacement: next,
			Reason:      "envelope-strip header merge",
		}}, res.Actions...)
		return res
	}

	envelope := map[string]any{}
	for f, v := range constants {
		envelope[f] = v
	}
	header := record.MustSynthetic(map[string]any{
		"type":             "file-history-snapshot",
		"messageId":        envelopeHeaderID,
		"isSnapshotUpdate": false,
		"uuid":             uuid.NewString(),
		"envelope":         envelope,
	})
	res.Prepend = &header
	return res
}
