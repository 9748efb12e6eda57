// Package diagnose analyzes where a transcript's weight comes from: byte
// breakdown per record kind, bloat signatures, the heaviest records, and
// the projected savings of each prescription.
package diagnose

import (
	"regexp"
	"sort"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/strategy"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

// KindStat aggregates one record kind.
type KindStat struct {
	Kind  record.Kind
	Count int
	Bytes int64
}

// HeavyRecord identifies one of the largest records.
type HeavyRecord struct {
	Index int
	Kind  record.Kind
	Bytes int
}

// Projection is the measured outcome of dry-running one prescription.
type Projection struct {
	Prescription string
	BytesSaved   int64
	SavedPct     float64
}

// Report is the full diagnosis.
type Report struct {
	TotalBytes   int64
	TotalRecords int
	Estimate     tokens.Estimate

	Kinds   []KindStat
	Heavy   []HeavyRecord

	ProgressTicks    int
	FileHistorySnaps int
	ReminderTags     int
	ThinkingBlocks   int
	ThinkingBytes    int64
	SignatureBytes   int64
	ToolResultBytes  int64
	OversizedResults int

	BytesPerToken float64 // 0 when calibration was impossible

	Projections []Projection
}

var reminderPattern = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

const topHeavy = 10

// Analyze builds the diagnosis report. cfg controls the dry-run projections;
// nil uses catalog defaults.
func Analyze(seq record.Sequence, cfg *strategy.Config) (*Report, error) {
	if cfg == nil {
		cfg = strategy.DefaultConfig()
	}
	rep := &Report{
		TotalBytes:   seq.TotalBytes(),
		TotalRecords: len(seq),
		Estimate:     tokens.EstimateSequence(seq),
	}

	kindAgg := map[record.Kind]*KindStat{}
	heavy := make([]HeavyRecord, 0, len(seq))

	for i, r := range seq {
		k := r.Kind()
		st := kindAgg[k]
		if st == nil {
			st = &KindStat{Kind: k}
			kindAgg[k] = st
		}
		st.Count++
		st.Bytes += int64(r.Size())
		heavy = append(heavy, HeavyRecord{Index: i, Kind: k, Bytes: r.Size()})

		switch k {
		case record.KindProgressTick:
			rep.ProgressTicks++
		case record.KindFileHistorySnapshot:
			rep.FileHistorySnaps++
		}

		for _, b := range r.Blocks() {
			switch record.BlockType(b) {
			case "thinking":
				rep.ThinkingBlocks++
				rep.ThinkingBytes += int64(record.BlockSize(b))
				if sig := b.Get("signature"); sig.Exists() {
					rep.SignatureBytes += int64(len(sig.String()))
				}
			case "tool_result":
				size := record.BlockSize(b)
				rep.ToolResultBytes += int64(size)
				if size > cfg.ToolOutputMaxBytes {
					rep.OversizedResults++
				}
			}
			if text := record.BlockText(b); text != "" {
				rep.ReminderTags += len(reminderPattern.FindAllString(text, -1))
			}
		}
		if s, ok := r.ContentString(); ok {
			rep.ReminderTags += len(reminderPattern.FindAllString(s, -1))
		}
	}

	for _, st := range kindAgg {
		rep.Kinds = append(rep.Kinds, *st)
	}
	sort.Slice(rep.Kinds, func(i, j int) bool { return rep.Kinds[i].Bytes > rep.Kinds[j].Bytes })

	sort.Slice(heavy, func(i, j int) bool { return heavy[i].Bytes > heavy[j].Bytes })
	if len(heavy) > topHeavy {
		heavy = heavy[:topHeavy]
	}
	rep.Heavy = heavy

	if ratio, ok := tokens.CalibrateRatio(seq); ok {
		rep.BytesPerToken = ratio
	}

	// Projected savings: actually run each prescription in dry-run mode.
	for _, rx := range strategy.PrescriptionNames() {
		names, _ := strategy.Prescription(rx)
		after, _, err := strategy.Run(seq, names, cfg)
		if err != nil {
			return nil, err
		}
		saved := rep.TotalBytes - after.TotalBytes()
		p := Projection{Prescription: rx, BytesSaved: saved}
		if rep.TotalBytes > 0 {
			p.SavedPct = float64(saved) / float64(rep.TotalBytes) * 100
		}
		rep.Projections = append(rep.Projections, p)
	}

	return rep, nil
}
