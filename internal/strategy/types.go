// Package strategy holds the declarative rewrite rules that slim a
// transcript, the registry that names them, and the applier that folds
// their actions into a new record sequence.
//
// A strategy is a pure function over the current record sequence: it never
// mutates its input and expresses every edit as an Action. The applier is
// the only component that builds new sequences.
package strategy

import (
	"github.com/junaidtitan/cozempic/internal/record"
)

// ActionType enumerates the declarative edits a strategy may emit.
type ActionType int

const (
	// ActionDrop removes the record entirely.
	ActionDrop ActionType = iota
	// ActionReplace substitutes a rewritten record. The replacement must
	// keep uuid and parentUuid identical to the original.
	ActionReplace
	// ActionReplaceRange collapses a contiguous run into one synthetic
	// record carrying the first original's identifiers.
	ActionReplaceRange
)

func (t ActionType) String() string {
	switch t {
	case ActionDrop:
		return "drop"
	case ActionReplace:
		return "replace"
	case ActionReplaceRange:
		return "replace-range"
	}
	return "unknown"
}

// Action is one declarative edit against the current sequence.
type Action struct {
	Type ActionType
	// First is the target index; Last equals First except for ReplaceRange,
	// where the range is [First, Last] inclusive.
	First, Last int
	// Replacement is the new record for Replace and ReplaceRange.
	Replacement record.Record
	// Reason is a short human-readable justification, used in verbose output.
	Reason string
}

// Result is what a strategy reports back.
type Result struct {
	Strategy string
	Actions  []Action
	Removed  int
	Modified int
	// BytesSaved is the measured serialized delta for this strategy alone,
	// filled in by the applier.
	BytesSaved int64
	Summary    string
	// Prepend, when set, is a synthetic header record inserted at the top
	// of the sequence after the actions fold (used by envelope-strip).
	Prepend *record.Record
}

// Config carries the per-strategy tunables. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// ThinkingMode is one of "remove", "truncate", "signature-only".
	ThinkingMode string
	// ToolOutputMaxBytes / ToolOutputMaxLines bound tool_result payloads.
	ToolOutputMaxBytes int
	ToolOutputMaxLines int
	// DocumentDedupMinBytes is the smallest block document-dedup considers.
	DocumentDedupMinBytes int
	// MegaBlockMaxBytes is the mega-block-trim ceiling.
	MegaBlockMaxBytes int
}

// DefaultConfig returns the catalog defaults.
func DefaultConfig() *Config {
	return &Config{
		ThinkingMode:          "remove",
		ToolOutputMaxBytes:    8 * 1024,
		ToolOutputMaxLines:    100,
		DocumentDedupMinBytes: 1024,
		MegaBlockMaxBytes:     32 * 1024,
	}
}

// Func is the strategy signature: current sequence in, declarative result out.
type Func func(seq record.Sequence, cfg *Config) Result

// Tier is the risk tier a strategy belongs to.
type Tier string

const (
	TierGentle     Tier = "gentle"
	TierStandard   Tier = "standard"
	TierAggressive Tier = "aggressive"
)

// Info is the static metadata registered for each strategy.
type Info struct {
	Name        string
	Tier        Tier
	Description string
	// ExpectedSavings is an advisory label only; measured savings are
	// authoritative everywhere they are reported.
	ExpectedSavings string
	Run             Func
}
