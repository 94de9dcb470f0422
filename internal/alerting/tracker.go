package alerting

import (
	"sync"
	"time"
)

// trackerKey identifies the per-(rule, test) state the engine mutates.
type trackerKey struct {
	RuleID string
	TestID string
}

// trackerEntry holds the consecutive-failure streak and the last fire time
// for one key. Its mutex serializes the increment-check-fire sequence so
// concurrent results for the same test cannot both pass the cooldown check.
type trackerEntry struct {
	mu        sync.Mutex
	streak    int
	lastFired time.Time
}

// Tracker is the consecutive-failure and cooldown state shared by the
// matching path, keyed by (rule id, test id). It is the only mutable
// shared state in that path.
type Tracker struct {
	mu      sync.Mutex
	entries map[trackerKey]*trackerEntry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[trackerKey]*trackerEntry)}
}

func (t *Tracker) entry(ruleID, testID string) *trackerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := trackerKey{RuleID: ruleID, TestID: testID}
	e, ok := t.entries[k]
	if !ok {
		e = &trackerEntry{}
		t.entries[k] = e
	}
	return e
}

// FireDecision is the outcome of observing one result for one key.
type FireDecision struct {
	// Streak is the post-update consecutive match count.
	Streak int
	// Fire is true when the streak reached the threshold and the key was
	// not cooling down; the caller must create the alert.
	Fire bool
	// Suppressed is true when the threshold was reached but the cooldown
	// window suppressed the firing.
	Suppressed bool
}

// Observe applies one result to the key's streak and cooldown state and
// returns the firing decision. A non-matching result resets the streak.
// When the decision is Fire, now is recorded as the new cooldown origin.
// The whole read-increment-check-update sequence runs under the key's lock.
func (t *Tracker) Observe(ruleID, testID string, matched bool, threshold int, cooldown time.Duration, now time.Time) FireDecision {
	e := t.entry(ruleID, testID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !matched {
		e.streak = 0
		return FireDecision{}
	}

	e.streak++
	if e.streak < threshold {
		return FireDecision{Streak: e.streak}
	}

	if cooldown > 0 && !e.lastFired.IsZero() && now.Sub(e.lastFired) < cooldown {
		return FireDecision{Streak: e.streak, Suppressed: true}
	}

	e.lastFired = now
	return FireDecision{Streak: e.streak, Fire: true}
}

// Streak returns the current streak for a key. Intended for tests and
// diagnostics.
func (t *Tracker) Streak(ruleID, testID string) int {
	e := t.entry(ruleID, testID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streak
}

// Clear removes all state for a rule, e.g. after the rule is deleted.
func (t *Tracker) Clear(ruleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.entries {
		if k.RuleID == ruleID {
			delete(t.entries, k)
		}
	}
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
