package strategy

import (
	"fmt"

	"github.com/junaidtitan/cozempic/internal/record"
)

// ErrUnknownStrategy is returned when a prescription names a strategy that
// is not in the registry.
type ErrUnknownStrategy struct{ Name string }

func (e ErrUnknownStrategy) Error() string { return fmt.Sprintf("unknown strategy %q", e.Name) }

// RunReport aggregates the results of a prescription run.
type RunReport struct {
	Results     []Result
	Warnings    []string
	Orphans     []string
	BytesBefore int64
	BytesAfter  int64
	RecordsBefore int
	RecordsAfter  int
	// Origins maps each output record to the index it occupied in the run's
	// input sequence (-1 for prepended synthetic headers). Replacements and
	// collapsed ranges map to the first index they took over.
	Origins []int
}

// BytesSaved is the total measured delta across the run.
func (r *RunReport) BytesSaved() int64 { return r.BytesBefore - r.BytesAfter }

// Removed is the total records removed across the run.
func (r *RunReport) Removed() int {
	n := 0
	for _, res := range r.Results {
		n += res.Removed
	}
	return n
}

// Modified is the total records modified across the run.
func (r *RunReport) Modified() int {
	n := 0
	for _, res := range r.Results {
		n += res.Modified
	}
	return n
}

// Run executes the named strategies in order, each over the output of the
// previous, so per-strategy byte deltas sum to the total. Strategies never
// return errors; invariant violations inside a strategy are downgraded to
// warnings and the offending action is dropped.
func Run(seq record.Sequence, names []string, cfg *Config) (record.Sequence, *RunReport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	report := &RunReport{
		BytesBefore:   seq.TotalBytes(),
		RecordsBefore: len(seq),
	}

	inputUUIDs := make(map[string]struct{}, len(seq))
	for _, r := range seq {
		if u := r.UUID(); u != "" {
			inputUUIDs[u] = struct{}{}
		}
	}

	current := seq
	origins := make([]int, len(seq))
	for i := range origins {
		origins[i] = i
	}

	for _, name := range names {
		info, ok := Lookup(name)
		if !ok {
			return nil, nil, ErrUnknownStrategy{Name: name}
		}

		before := current.TotalBytes()
		res := info.Run(current, cfg)
		res.Strategy = info.Name

		var warnings []string
		current, origins, warnings = fold(current, origins, &res)
		report.Warnings = append(report.Warnings, warnings...)

		res.BytesSaved = before - current.TotalBytes()
		report.Results = append(report.Results, res)
	}

	report.BytesAfter = current.TotalBytes()
	report.RecordsAfter = len(current)
	report.Origins = origins
	report.Orphans = orphanDiagnostics(current, inputUUIDs)
	return current, report, nil
}

// RunOne executes a single strategy by name.
func RunOne(seq record.Sequence, name string, cfg *Config) (record.Sequence, *RunReport, error) {
	return Run(seq, []string{name}, cfg)
}

// fold validates a strategy's actions and applies the survivors, returning
// the new sequence, the carried-through origin indices, and any warnings.
func fold(seq record.Sequence, origins []int, res *Result) (record.Sequence, []int, []string) {
	var warnings []string

	// Accept actions in emitted order; an action whose target overlaps an
	// earlier-listed one is a strategy bug, reported and dropped.
	claimed := make(map[int]bool)
	accepted := make([]Action, 0, len(res.Actions))
	for _, a := range res.Actions {
		first, last := a.First, a.Last
		if a.Type != ActionReplaceRange {
			last = first
		}
		if first < 0 || last >= len(seq) || last < first {
			warnings = append(warnings,
				fmt.Sprintf("%s: action %s targets invalid range [%d,%d], dropped", res.Strategy, a.Type, first, last))
			continue
		}
		if overlap := anyClaimed(claimed, first, last); overlap {
			warnings = append(warnings,
				fmt.Sprintf("%s: overlapping action %s at [%d,%d], dropped", res.Strategy, a.Type, first, last))
			continue
		}
		if w := validate(seq, a, first, last, res.Strategy); w != "" {
			warnings = append(warnings, w)
			continue
		}
		for i := first; i <= last; i++ {
			claimed[i] = true
		}
		a.Last = last
		accepted = append(accepted, a)
	}

	// Fold accepted actions into a new sequence.
	byIndex := make(map[int]Action, len(accepted))
	skip := make(map[int]bool)
	for _, a := range accepted {
		byIndex[a.First] = a
		for i := a.First + 1; i <= a.Last; i++ {
			skip[i] = true
		}
	}

	removed, modified := 0, 0
	out := make(record.Sequence, 0, len(seq))
	outOrigins := make([]int, 0, len(seq))
	for i, r := range seq {
		if skip[i] {
			removed++
			continue
		}
		a, ok := byIndex[i]
		if !ok {
			out = append(out, r)
			outOrigins = append(outOrigins, origins[i])
			continue
		}
		switch a.Type {
		case ActionDrop:
			removed++
		case ActionReplace:
			out = append(out, a.Replacement)
			outOrigins = append(outOrigins, origins[i])
			modified++
		case ActionReplaceRange:
			out = append(out, a.Replacement)
			outOrigins = append(outOrigins, origins[i])
			modified++
		}
	}

	if res.Prepend != nil {
		out = append(record.Sequence{*res.Prepend}, out...)
		outOrigins = append([]int{-1}, outOrigins...)
	}

	res.Removed = removed
	res.Modified = modified
	return out, outOrigins, warnings
}

func anyClaimed(claimed map[int]bool, first, last int) bool {
	for i := first; i <= last; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

// validate enforces the per-action invariants: protected kinds are never
// dropped, and replacements keep the structural identifiers of the record
// whose slot they take.
func validate(seq record.Sequence, a Action, first, last int, strategyName string) string {
	switch a.Type {
	case ActionDrop:
		if seq[first].Kind().Protected() {
			return fmt.Sprintf("%s: refusing to drop protected %s record at %d", strategyName, seq[first].Kind(), first)
		}
	case ActionReplace:
		orig := seq[first]
		if orig.Kind().Protected() && a.Replacement.Kind() != orig.Kind() {
			return fmt.Sprintf("%s: replacement at %d would change protected kind %s", strategyName, first, orig.Kind())
		}
		if a.Replacement.UUID() != orig.UUID() || a.Replacement.ParentUUID() != orig.ParentUUID() {
			return fmt.Sprintf("%s: replacement at %d mutates identifiers, dropped", strategyName, first)
		}
	case ActionReplaceRange:
		for i := first; i <= last; i++ {
			if seq[i].Kind().Protected() {
				return fmt.Sprintf("%s: range [%d,%d] covers protected %s record at %d", strategyName, first, last, seq[i].Kind(), i)
			}
		}
		orig := seq[first]
		if a.Replacement.UUID() != orig.UUID() || a.Replacement.ParentUUID() != orig.ParentUUID() {
			return fmt.Sprintf("%s: range replacement at %d mutates identifiers, dropped", strategyName, first)
		}
	}
	return ""
}

// orphanDiagnostics reports surviving records whose parent was dropped.
// Orphaning is allowed — the host agent treats them as additional roots —
// but it is surfaced so a run can be audited.
func orphanDiagnostics(seq record.Sequence, inputUUIDs map[string]struct{}) []string {
	surviving := make(map[string]struct{}, len(seq))
	for _, r := range seq {
		if u := r.UUID(); u != "" {
			surviving[u] = struct{}{}
		}
	}
	var orphans []string
	for i, r := range seq {
		p := r.ParentUUID()
		if p == "" {
			continue
		}
		if _, ok := surviving[p]; ok {
			continue
		}
		if _, wasInput := inputUUIDs[p]; wasInput {
			orphans = append(orphans, fmt.Sprintf("record %d (%s) orphaned: parent %s was dropped", i, r.UUID(), p))
		}
	}
	return orphans
}
