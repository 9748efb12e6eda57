package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// prescriptionLadder is the escalation order for reactive recoveries.
var prescriptionLadder = []string{"gentle", "standard", "aggressive"}

// recoveryRecord is one breaker entry, persisted so a restarted guard still
// sees recent recoveries.
type recoveryRecord struct {
	TS       int64   `json:"ts"`
	Rx       string  `json:"rx"`
	BeforeMB float64 `json:"before_mb"`
	AfterMB  float64 `json:"after_mb"`
}

// Breaker rate-limits automatic prunes. It tracks recoveries in a rolling
// window, escalates the prescription on each consecutive recovery, and trips
// after the maximum. State lives in a temp file keyed by session id, so a
// second guard on the same session observes the same history.
type Breaker struct {
	statePath string
	max       int
	window    time.Duration
	now       func() time.Time
}

// NewBreaker creates a breaker for one session.
func NewBreaker(sessionID string, max int, window time.Duration) *Breaker {
	sum := sha256.Sum256([]byte(sessionID))
	slug := hex.EncodeToString(sum[:])[:12]
	return &Breaker{
		statePath: filepath.Join(os.TempDir(), "cozempic_breaker_"+slug+".json"),
		max:       max,
		window:    window,
		now:       time.Now,
	}
}

// load reads recovery records, discarding entries outside the window.
func (b *Breaker) load() []recoveryRecord {
	data, err := os.ReadFile(b.statePath)
	if err != nil {
		return nil
	}
	var records []recoveryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	cutoff := b.now().Add(-b.window).Unix()
	kept := records[:0]
	for _, r := range records {
		if r.TS > cutoff {
			kept = append(kept, r)
		}
	}
	return kept
}

func (b *Breaker) save(records []recoveryRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	_ = os.WriteFile(b.statePath, data, 0o600)
}

// CanRecover reports whether another recovery is allowed in the window.
func (b *Breaker) CanRecover() bool {
	return len(b.load()) < b.max
}

// Tripped is the inverse of CanRecover.
func (b *Breaker) Tripped() bool {
	return !b.CanRecover()
}

// Count returns the recoveries inside the current window.
func (b *Breaker) Count() int {
	return len(b.load())
}

// NextPrescription escalates gentle -> standard -> aggressive with each
// recovery already in the window.
func (b *Breaker) NextPrescription() string {
	idx := len(b.load())
	if idx >= len(prescriptionLadder) {
		idx = len(prescriptionLadder) - 1
	}
	return prescriptionLadder[idx]
}

// Record appends a recovery event.
func (b *Breaker) Record(rx string, beforeMB, afterMB float64) {
	records := b.load()
	records = append(records, recoveryRecord{
		TS:       b.now().Unix(),
		Rx:       rx,
		BeforeMB: beforeMB,
		AfterMB:  afterMB,
	})
	b.save(records)
}

// Reset clears all recovery records.
func (b *Breaker) Reset() {
	_ = os.Remove(b.statePath)
}
