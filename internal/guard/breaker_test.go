package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Now()
	b := NewBreaker("breaker-test-"+t.Name(), 3, 5*time.Minute)
	b.now = func() time.Time { return now }
	t.Cleanup(b.Reset)
	return b, &now
}

func TestBreaker_EscalationLadder(t *testing.T) {
	b, _ := testBreaker(t)

	assert.True(t, b.CanRecover())
	assert.Equal(t, "gentle", b.NextPrescription())

	b.Record("gentle", 90, 40)
	assert.Equal(t, "standard", b.NextPrescription())

	b.Record("standard", 95, 35)
	assert.Equal(t, "aggressive", b.NextPrescription())

	b.Record("aggressive", 99, 30)
	assert.False(t, b.CanRecover())
	assert.True(t, b.Tripped())
	assert.Equal(t, 3, b.Count())
}

func TestBreaker_WindowExpiry(t *testing.T) {
	b, now := testBreaker(t)

	b.Record("gentle", 90, 40)
	b.Record("standard", 90, 40)
	b.Record("aggressive", 90, 40)
	require.True(t, b.Tripped())

	// After the window passes with no new recoveries, the breaker resets.
	*now = now.Add(6 * time.Minute)
	assert.False(t, b.Tripped())
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, "gentle", b.NextPrescription())
}

func TestBreaker_StateSharedAcrossInstances(t *testing.T) {
	b1, _ := testBreaker(t)
	b1.Record("gentle", 90, 40)

	// A second guard process on the same session sees the same history.
	b2 := NewBreaker("breaker-test-"+t.Name(), 3, 5*time.Minute)
	assert.Equal(t, 1, b2.Count())
	assert.Equal(t, "standard", b2.NextPrescription())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := testBreaker(t)
	b.Record("gentle", 90, 40)
	b.Reset()
	assert.Equal(t, 0, b.Count())
}

func TestAcquireLock(t *testing.T) {
	release, err := AcquireLock("lock-test-session")
	require.NoError(t, err)

	// A second guard on the same session is refused while we are alive.
	_, err = AcquireLock("lock-test-session")
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := AcquireLock("lock-test-session")
	require.NoError(t, err)
	release2()
}
