package pipeline

import "sync"

// Ledger is the append-only record of per-task terminal outcomes. The mutex
// keeps it safe when the runner is configured with more than one worker.
type Ledger struct {
	mu        sync.Mutex
	successes []Success
	failures  []Failure
}

// RecordSuccess appends a successful task outcome.
func (l *Ledger) RecordSuccess(s Success) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successes = append(l.successes, s)
}

// RecordFailure appends a failed task outcome.
func (l *Ledger) RecordFailure(f Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, f)
}

// Demote moves a previously recorded success to the failure list, keyed by
// the originating URL. Used when queue delivery for that task never acks.
// Returns false if no matching success exists.
func (l *Ledger) Demote(url string, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, s := range l.successes {
		if s.Task.URL != url {
			continue
		}
		l.successes = append(l.successes[:i], l.successes[i+1:]...)
		l.failures = append(l.failures, Failure{Task: s.Task, Err: err})
		return true
	}
	return false
}

// Snapshot returns copies of both outcome lists.
func (l *Ledger) Snapshot() (successes []Success, failures []Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()

	successes = make([]Success, len(l.successes))
	copy(successes, l.successes)
	failures = make([]Failure, len(l.failures))
	copy(failures, l.failures)
	return successes, failures
}
