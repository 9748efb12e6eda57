package strategy

import (
	"fmt"

	"github.com/junaidtitan/cozempic/internal/record"
)

func init() {
	register(Info{
		Name:            "progress-collapse",
		Tier:            TierGentle,
		Description:     "Collapse consecutive progress tick records into one",
		ExpectedSavings: "40-48%",
		Run:             progressCollapse,
	})
	register(Info{
		Name:            "file-history-dedup",
		Tier:            TierGentle,
		Description:     "Deduplicate file-history snapshots, keeping the last",
		ExpectedSavings: "3-6%",
		Run:             fileHistoryDedup,
	})
	register(Info{
		Name:            "metadata-strip",
		Tier:            TierGentle,
		Description:     "Strip token usage, stop reason, and cost telemetry",
		ExpectedSavings: "1-3%",
		Run:             metadataStrip,
	})
}

// progressCollapse replaces each run of two or more consecutive progress
// ticks with one synthetic tick that carries the run length and the last
// observed tick text. A run of one is left alone.
func progressCollapse(seq record.Sequence, _ *Config) Result {
	var actions []Action
	collapsed := 0

	// A collapse result carries a count field; it never re-collapses, so a
	// second pass over already-treated output is a no-op.
	eligible := func(r record.Record) bool {
		return r.Kind() == record.KindProgressTick && !r.Exists("count")
	}

	i := 0
	for i < len(seq) {
		if !eligible(seq[i]) {
			i++
			continue
		}
		j := i
		for j < len(seq) && eligible(seq[j]) {
			j++
		}
		if n := j - i; n >= 2 {
			first := seq[i]
			lastText := recordText(seq[j-1])
			fields := map[string]any{
				"type":  "progress",
				"count": n,
				"message": map[string]any{
					"content": fmt.Sprintf("[%d progress ticks collapsed; last: %s]", n, firstLine(lastText)),
				},
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
			actions = append(actions, Action{
				Type:        ActionReplaceRange,
				First:       i,
				Last:        j - 1,
				Replacement: record.MustSynthetic(fields),
				Reason:      fmt.Sprintf("run of %d progress ticks", n),
			})
			collapsed += n
		}
		i = j
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("collapsed %d progress ticks into %d records", collapsed, len(actions)),
	}
}

// fileHistoryDedup drops earlier file-history snapshots whose canonicalized
// payload matches a later one; only the last copy of each payload survives.
func fileHistoryDedup(seq record.Sequence, _ *Config) Result {
	lastByPayload := map[string]int{}
	positions := map[string][]int{}

	for i, r := range seq {
		if r.Kind() != record.KindFileHistorySnapshot || r.IsParseError() {
			continue
		}
		h := snapshotPayloadHash(r)
		lastByPayload[h] = i
		positions[h] = append(positions[h], i)
	}

	var actions []Action
	for h, idxs := range positions {
		last := lastByPayload[h]
		for _, i := range idxs {
			if i == last {
				continue
			}
			actions = append(actions, Action{
				Type:   ActionDrop,
				First:  i,
				Last:   i,
				Reason: "duplicate file-history snapshot",
			})
		}
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("removed %d duplicate file-history snapshots", len(actions)),
	}
}

// snapshotPayloadHash canonicalizes a snapshot record (identifiers and
// timestamp excluded) and hashes it, so two snapshots of the same state
// collide regardless of when they were taken.
func snapshotPayloadHash(r record.Record) string {
	v := r.Get("@this").Value()
	m, ok := v.(map[string]any)
	if !ok {
		return hashText(string(r.Bytes()))
	}
	delete(m, "uuid")
	delete(m, "parentUuid")
	delete(m, "timestamp")
	return hashText(canonicalPayload(m))
}

// Telemetry fields stripped by metadata-strip. Structural identifiers and
// kind markers are never in these lists.
var (
	metadataInnerFields = []string{"message.usage", "message.stop_reason", "message.stop_sequence"}
	metadataOuterFields = []string{"costUSD", "durationMs", "duration", "apiDuration"}
)

// metadataStrip removes token-usage counters, stop reasons, and cost fields
// from every record that carries them.
func metadataStrip(seq record.Sequence, _ *Config) Result {
	var actions []Action

	for i, r := range seq {
		if r.IsParseError() {
			continue
		}
		next := r
		changed := false
		for _, path := range metadataInnerFields {
			var did bool
			next, did = next.Delete(path)
			changed = changed || did
		}
		for _, path := range metadataOuterFields {
			var did bool
			next, did = next.Delete(path)
			changed = changed || did
		}
		if changed {
			actions = append(actions, Action{
				Type:        ActionReplace,
				First:       i,
				Last:        i,
				Replacement: next,
				Reason:      "metadata-strip",
			})
		}
	}

	return Result{
		Actions: actions,
		Summary: fmt.Sprintf("stripped telemetry from %d records", len(actions)),
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
		if i > 160 {
			return s[:i]
		}
	}
	return s
}
