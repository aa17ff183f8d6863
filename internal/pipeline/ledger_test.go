package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelprice232/book-harvester/internal/extract"
)

func TestLedger_RecordAndSnapshot(t *testing.T) {
	l := &Ledger{}

	ok := NewTask("http://example.com/1.zip")
	bad := NewTask("http://example.com/2.zip")

	l.RecordSuccess(Success{Task: ok, Book: &extract.Book{Title: "A"}})
	l.RecordFailure(Failure{Task: bad, Err: assert.AnError})

	successes, failures := l.Snapshot()
	require.Len(t, successes, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, ok.URL, successes[0].Task.URL)
	assert.Equal(t, bad.URL, failures[0].Task.URL)
}

func TestLedger_Demote(t *testing.T) {
	l := &Ledger{}
	task := NewTask("http://example.com/1.zip")
	l.RecordSuccess(Success{Task: task, Book: &extract.Book{Title: "A"}})

	demoted := l.Demote(task.URL, assert.AnError)
	assert.True(t, demoted)

	successes, failures := l.Snapshot()
	assert.Empty(t, successes)
	require.Len(t, failures, 1)
	assert.Equal(t, task.ID, failures[0].Task.ID)
	assert.ErrorIs(t, failures[0].Err, assert.AnError)
}

func TestLedger_DemoteUnknownURL(t *testing.T) {
	l := &Ledger{}
	l.RecordFailure(Failure{Task: NewTask("http://example.com/1.zip"), Err: assert.AnError})

	assert.False(t, l.Demote("http://example.com/unknown.zip", assert.AnError))

	// The failure list is untouched.
	_, failures := l.Snapshot()
	assert.Len(t, failures, 1)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := &Ledger{}
	l.RecordSuccess(Success{Task: NewTask("http://example.com/1.zip"), Book: &extract.Book{Title: "A"}})

	successes, _ := l.Snapshot()
	successes[0].Task.URL = "mutated"

	fresh, _ := l.Snapshot()
	assert.Equal(t, "http://example.com/1.zip", fresh[0].Task.URL)
}
