package strategy

import (
	"fmt"
	"sort"
)

// The registry maps strategy name to its Info. It is populated once from the
// static catalog in this package's init functions and never mutated after.
var registry = map[string]Info{}

func register(info Info) {
	if _, dup := registry[info.Name]; dup {
		panic(fmt.Sprintf("strategy %q registered twice", info.Name))
	}
	registry[info.Name] = info
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Info, bool) {
	info, ok := registry[name]
	return info, ok
}

// All returns every registered strategy, sorted by tier then name.
func All() []Info {
	infos := make([]Info, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	tierRank := map[Tier]int{TierGentle: 0, TierStandard: 1, TierAggressive: 2}
	sort.Slice(infos, func(i, j int) bool {
		if tierRank[infos[i].Tier] != tierRank[infos[j].Tier] {
			return tierRank[infos[i].Tier] < tierRank[infos[j].Tier]
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Prescriptions are the named strategy combos with curated ordering:
// whole-record removals run before block rewrites, and envelope-strip runs
// last because it needs to observe the full surviving record set.
var prescriptions = map[string][]string{
	"gentle": {
		"progress-collapse",
		"file-history-dedup",
		"metadata-strip",
	},
	"standard": {
		"progress-collapse",
		"file-history-dedup",
		"metadata-strip",
		"thinking-blocks",
		"tool-output-trim",
		"stale-reads",
		"system-reminder-dedup",
	},
	"aggressive": {
		"progress-collapse",
		"file-history-dedup",
		"metadata-strip",
		"thinking-blocks",
		"tool-output-trim",
		"stale-reads",
		"system-reminder-dedup",
		"http-spam",
		"error-retry-collapse",
		"background-poll-collapse",
		"document-dedup",
		"mega-block-trim",
		"envelope-strip",
	},
}

// Prescription resolves a prescription name to its ordered strategy list.
func Prescription(name string) ([]string, bool) {
	names, ok := prescriptions[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(names))
	copy(out, names)
	return out, true
}

// PrescriptionNames returns the prescription names in escalation order.
func PrescriptionNames() []string {
	return []string{"gentle", "standard", "aggressive"}
}
