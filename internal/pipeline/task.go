// Package pipeline drives discovery, per-archive processing, and the final
// outcome report.
package pipeline

import (
	"github.com/google/uuid"

	"github.com/michaelprice232/book-harvester/internal/extract"
	"github.com/michaelprice232/book-harvester/internal/publish"
)

// Task is one archive to process. Immutable once created; it terminates in
// exactly one ledger list.
type Task struct {
	ID  string
	URL string
}

// NewTask creates a task for one archive URL.
func NewTask(url string) Task {
	return Task{ID: uuid.NewString(), URL: url}
}

// Success records a task whose book was extracted and submitted to the queue.
type Success struct {
	Task  Task
	Book  *extract.Book
	Lines publish.LineStats
}

// Failure records a task that hit a terminal error.
type Failure struct {
	Task Task
	Err  error
}
