package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/michaelprice232/book-harvester/internal/archive"
	"github.com/michaelprice232/book-harvester/internal/extract"
	"github.com/michaelprice232/book-harvester/internal/observability"
	"github.com/michaelprice232/book-harvester/internal/publish"
)

// Discoverer yields archive URLs from the harvest listing.
type Discoverer interface {
	Discover(ctx context.Context, targetCount int) ([]string, error)
}

// Fetcher downloads and unpacks one archive. Release must be safe to call on
// every exit path.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Release(dir string)
}

// BookPublisher submits extracted books to the queue and settles deliveries
// on Flush.
type BookPublisher interface {
	PublishBook(ctx context.Context, taskURL string, book *extract.Book) (publish.LineStats, error)
	Flush(ctx context.Context) []publish.DeliveryFailure
}

// Runner owns one harvest run: discovery, per-task processing, delivery
// flush, and the outcome ledger.
type Runner struct {
	discoverer  Discoverer
	fetcher     Fetcher
	publisher   BookPublisher
	targetCount int
	workers     int
	logger      observability.Logger
	metrics     *observability.Metrics
}

// NewRunner wires the pipeline components. workers values below 1 are
// treated as 1, which preserves sequential processing in discovery order.
func NewRunner(d Discoverer, f Fetcher, p BookPublisher, targetCount, workers int, logger observability.Logger, metrics *observability.Metrics) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		discoverer:  d,
		fetcher:     f,
		publisher:   p,
		targetCount: targetCount,
		workers:     workers,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run performs one full discovery and processing pass. Only discovery
// failures are returned as errors; every per-archive failure lands in the
// report instead.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	urls, err := r.discoverer.Discover(ctx, r.targetCount)
	if err != nil {
		r.metrics.RecordError("discovery", "discover")
		return nil, err
	}
	r.logger.Info("discovery complete", "archives", len(urls))

	ledger := &Ledger{}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, url := range urls {
		task := NewTask(url)
		g.Go(func() error {
			r.process(ctx, task, ledger)
			return nil
		})
	}
	// Workers never return errors; failures land in the ledger.
	_ = g.Wait()

	// Settle outstanding deliveries. An unacknowledged message degrades its
	// task to a recorded failure but never aborts the run.
	for _, df := range r.publisher.Flush(ctx) {
		r.metrics.RecordError("delivery", "flush")
		if ledger.Demote(df.URL, df.Err) {
			r.metrics.RecordProcessed("failure")
			r.logger.Warn("queue delivery failed, archive recorded as failed", "url", df.URL, "error", df.Err)
		}
	}

	return NewReport(ledger, len(urls)), nil
}

// process walks one task through fetch, extract, and publish. Every exit path
// records exactly one terminal outcome and releases the unpacked directory.
func (r *Runner) process(ctx context.Context, task Task, ledger *Ledger) {
	start := time.Now()
	log := r.logger.WithFields(map[string]interface{}{"task_id": task.ID, "url": task.URL})

	fail := func(operation string, err error) {
		log.Warn("skipping archive", "operation", operation, "error", err)
		r.metrics.RecordError(classify(err), operation)
		r.metrics.RecordProcessed("failure")
		ledger.RecordFailure(Failure{Task: task, Err: err})
	}

	dir, err := r.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		fail("fetch", err)
		return
	}
	defer r.fetcher.Release(dir)

	book, err := extract.Extract(dir)
	if err != nil {
		fail("extract", err)
		return
	}

	stats, err := r.publisher.PublishBook(ctx, task.URL, book)
	if err != nil {
		fail("publish", err)
		return
	}

	r.metrics.RecordProcessed("success")
	r.metrics.ObserveDuration("process_archive", time.Since(start).Seconds())
	log.Info("archive processed", "title", book.Title, "messages", stats.MessagesSent)
	ledger.RecordSuccess(Success{Task: task, Book: book, Lines: stats})
}

// classify maps a task error to a metrics label.
func classify(err error) string {
	switch {
	case errors.Is(err, archive.ErrDownload):
		return "download"
	case errors.Is(err, archive.ErrUnpack):
		return "unpack"
	case errors.Is(err, extract.ErrNoTextFile), errors.Is(err, extract.ErrAmbiguousArchive):
		return "ambiguous"
	case errors.Is(err, extract.ErrDecode):
		return "decode"
	case errors.Is(err, extract.ErrTitleNotFound):
		return "title_not_found"
	default:
		return "other"
	}
}
