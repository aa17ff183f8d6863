// Package publish serializes extracted books into queue messages and tracks
// their delivery until a final flush.
package publish

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/michaelprice232/book-harvester/internal/extract"
	"github.com/michaelprice232/book-harvester/internal/observability"
	"github.com/michaelprice232/book-harvester/internal/queue"
)

// lineMessage is the wire format consumed downstream: one message per
// non-blank line of the book.
type lineMessage struct {
	BookTitle string `json:"book_title"`
	BookLine  string `json:"book_line"`
}

// LineStats summarises what was published for one book.
type LineStats struct {
	TotalLines   int
	BlankLines   int
	MessagesSent int
}

// DeliveryFailure reports a task whose queue delivery never acked.
type DeliveryFailure struct {
	URL string
	Err error
}

// Publisher hands book lines to the broker and keeps the pending delivery
// handles so Flush can wait for broker acknowledgement at the end of the run.
type Publisher struct {
	broker       queue.Broker
	topic        string
	flushTimeout time.Duration
	logger       observability.Logger
	metrics      *observability.Metrics

	mu       sync.Mutex
	inFlight []pendingDelivery
}

type pendingDelivery struct {
	url     string
	pending queue.Pending
}

// New creates a Publisher targeting one topic.
func New(broker queue.Broker, topic string, flushTimeout time.Duration, logger observability.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		broker:       broker,
		topic:        topic,
		flushTimeout: flushTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// PublishBook reads the book file and submits one message per non-blank line.
// Submission is fire-and-forget; delivery is settled later by Flush.
func (p *Publisher) PublishBook(ctx context.Context, taskURL string, book *extract.Book) (LineStats, error) {
	var stats LineStats

	f, err := os.Open(book.Path)
	if err != nil {
		return stats, fmt.Errorf("open book file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		stats.TotalLines++

		if line == "" {
			stats.BlankLines++
			continue
		}

		pending, err := p.broker.Publish(ctx, &queue.Message{
			Topic: p.topic,
			Key:   taskURL,
			Body:  lineMessage{BookTitle: book.Title, BookLine: line},
		})
		if err != nil {
			return stats, fmt.Errorf("publish line %d: %w", stats.TotalLines, err)
		}

		p.track(taskURL, pending)
		p.metrics.RecordMessagePublished()
		stats.MessagesSent++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read book file: %w", err)
	}

	p.logger.Info("book submitted to queue",
		"title", book.Title, "lines", stats.TotalLines,
		"blank_lines", stats.BlankLines, "messages", stats.MessagesSent)

	return stats, nil
}

func (p *Publisher) track(url string, pending queue.Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = append(p.inFlight, pendingDelivery{url: url, pending: pending})
}

// Flush blocks until every in-flight message has been acknowledged, rejected,
// or the flush timeout lapses. It returns one failure per task URL with at
// least one unconfirmed message. Flush never aborts the caller; the outcome
// is folded into the run ledger instead.
func (p *Publisher) Flush(ctx context.Context) []DeliveryFailure {
	p.mu.Lock()
	inFlight := p.inFlight
	p.inFlight = nil
	p.mu.Unlock()

	if len(inFlight) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.flushTimeout)
	defer cancel()

	start := time.Now()
	p.logger.Info("waiting for broker to acknowledge deliveries", "in_flight", len(inFlight))

	failedByURL := make(map[string]error)
	var order []string

	for _, d := range inFlight {
		var deliveryErr error
		select {
		case <-d.pending.Done():
			deliveryErr = d.pending.Err()
		case <-ctx.Done():
			deliveryErr = fmt.Errorf("delivery not acknowledged: %w", ctx.Err())
		}

		if deliveryErr == nil {
			continue
		}
		if _, seen := failedByURL[d.url]; !seen {
			failedByURL[d.url] = deliveryErr
			order = append(order, d.url)
		}
	}

	p.metrics.ObserveDuration("flush", time.Since(start).Seconds())

	failures := make([]DeliveryFailure, 0, len(order))
	for _, url := range order {
		failures = append(failures, DeliveryFailure{URL: url, Err: failedByURL[url]})
	}
	return failures
}
