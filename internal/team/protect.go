package team

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/strategy"
)

// recoverySentinel marks the synthetic recovery pair so later prunes can
// find and replace it idempotently.
const recoverySentinel = "[cozempic-team-recovery]"

// CheckpointFileName is the per-project checkpoint file.
const CheckpointFileName = "team-checkpoint.txt"

// ProtectResult reports what a team-protected prune did.
type ProtectResult struct {
	Report      *strategy.RunReport
	State       *State
	TeamRecords int
}

// Prune runs a prescription with team protection: coordination records are
// excluded from the strategy pass, the survivors are re-merged in original
// order, any prior recovery pair is removed, and a fresh sentinel pair
// stating the team picture is inserted at the top.
func Prune(seq record.Sequence, rxNames []string, cfg *strategy.Config, state *State) (record.Sequence, *ProtectResult, error) {
	if state == nil {
		state = Extract(seq)
	}

	if state.IsEmpty() {
		out, report, err := strategy.Run(seq, rxNames, cfg)
		if err != nil {
			return nil, nil, err
		}
		return out, &ProtectResult{Report: report, State: state}, nil
	}

	coordSet := state.CoordSet()

	type positioned struct {
		pos int
		rec record.Record
	}
	var teamRecords []positioned
	var others record.Sequence
	var otherPos []int

	for i, r := range seq {
		if coordSet[i] {
			teamRecords = append(teamRecords, positioned{pos: i, rec: r})
		} else {
			others = append(others, r)
			otherPos = append(otherPos, i)
		}
	}

	pruned, report, err := strategy.Run(others, rxNames, cfg)
	if err != nil {
		return nil, nil, err
	}

	// Re-merge by original transcript position. Origins map pruned records
	// back to their index in the others subsequence; -1 marks a prepended
	// header, which sorts to the front.
	merged := make([]positioned, 0, len(pruned)+len(teamRecords))
	for i, r := range pruned {
		origin := report.Origins[i]
		pos := -1
		if origin >= 0 {
			pos = otherPos[origin]
		}
		merged = append(merged, positioned{pos: pos, rec: r})
	}
	merged = append(merged, teamRecords...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].pos < merged[j].pos })

	out := make(record.Sequence, 0, len(merged)+2)
	for _, p := range merged {
		out = append(out, p.rec)
	}

	out = removeRecoveryPair(out)
	out = insertRecoveryPair(out, state)

	return out, &ProtectResult{
		Report:      report,
		State:       state,
		TeamRecords: len(teamRecords),
	}, nil
}

// removeRecoveryPair drops any records from a previous injection.
func removeRecoveryPair(seq record.Sequence) record.Sequence {
	out := make(record.Sequence, 0, len(seq))
	for _, r := range seq {
		if isRecoveryRecord(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isRecoveryRecord(r record.Record) bool {
	if s, ok := r.ContentString(); ok {
		return strings.Contains(s, recoverySentinel)
	}
	for _, b := range r.Blocks() {
		if strings.Contains(record.BlockText(b), recoverySentinel) {
			return true
		}
	}
	return false
}

// insertRecoveryPair places a synthetic user/assistant pair at the top so
// the host agent rehydrates the team picture on resume.
func insertRecoveryPair(seq record.Sequence, state *State) record.Sequence {
	sessionID := ""
	for _, r := range seq {
		if s := r.SessionID(); s != "" {
			sessionID = s
			break
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	userUUID := uuid.NewString()
	assistantUUID := uuid.NewString()
	recovery := state.RecoveryText()

	userFields := map[string]any{
		"type":      "user",
		"uuid":      userUUID,
		"timestamp": now,
		"message": map[string]any{
			"role": "user",
			"content": fmt.Sprintf(
				"%s Context was pruned to prevent compaction. Confirm the current agent team state below.\n\n%s",
				recoverySentinel, recovery),
		},
	}
	assistantFields := map[string]any{
		"type":       "assistant",
		"uuid":       assistantUUID,
		"parentUuid": userUUID,
		"timestamp":  now,
		"message": map[string]any{
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "text",
				"text": fmt.Sprintf(
					"%s Confirmed — the agent team is active.\n\n%s\n\nA checkpoint was also written to %s. Continuing with team coordination.",
					recoverySentinel, recovery, CheckpointFileName),
			}},
		},
	}
	if sessionID != "" {
		userFields["sessionId"] = sessionID
		assistantFields["sessionId"] = sessionID
	}

	pair := record.Sequence{
		record.MustSynthetic(userFields),
		record.MustSynthetic(assistantFields),
	}
	return append(pair, seq...)
}
