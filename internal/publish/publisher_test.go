package publish

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelprice232/book-harvester/internal/extract"
	"github.com/michaelprice232/book-harvester/internal/observability"
	"github.com/michaelprice232/book-harvester/internal/queue"
)

// fakeBroker records published messages and lets tests control delivery.
type fakeBroker struct {
	mu       sync.Mutex
	messages []*queue.Message
	pendings []*fakePending
	failNext error
}

type fakePending struct {
	done chan struct{}
	err  error
}

func (p *fakePending) Done() <-chan struct{} { return p.done }
func (p *fakePending) Err() error            { return p.err }

func (b *fakeBroker) Publish(ctx context.Context, msg *queue.Message) (queue.Pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return nil, err
	}
	b.messages = append(b.messages, msg)
	p := &fakePending{done: make(chan struct{})}
	b.pendings = append(b.pendings, p)
	return p, nil
}

func (b *fakeBroker) Close() error { return nil }

// settle resolves all recorded pendings, optionally failing some of them.
func (b *fakeBroker) settle(errs map[int]error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.pendings {
		p.err = errs[i]
		close(p.done)
	}
}

func writeBook(t *testing.T, content string) *extract.Book {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &extract.Book{Title: "Test Book", Path: path, SizeBytes: int64(len(content))}
}

func newTestPublisher(broker queue.Broker, flushTimeout time.Duration) *Publisher {
	logger := observability.NewLogger("test", "error", false, io.Discard)
	metrics := observability.NewMetrics("test")
	return New(broker, "book-lines", flushTimeout, logger, metrics)
}

func TestPublishBook_SkipsBlankLines(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, time.Second)
	book := writeBook(t, "Title: Test Book\n\nfirst line\n\n\nsecond line\n")

	stats, err := p.PublishBook(t.Context(), "http://example.com/1.zip", book)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalLines)
	assert.Equal(t, 3, stats.BlankLines)
	assert.Equal(t, 3, stats.MessagesSent)
	assert.Len(t, broker.messages, 3)
}

func TestPublishBook_MessageWireFormat(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, time.Second)
	book := writeBook(t, "Call me Ishmael.\n")

	_, err := p.PublishBook(t.Context(), "http://example.com/moby.zip", book)
	require.NoError(t, err)

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "book-lines", msg.Topic)
	assert.Equal(t, "http://example.com/moby.zip", msg.Key)

	data, err := json.Marshal(msg.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"book_title":"Test Book","book_line":"Call me Ishmael."}`, string(data))
}

func TestPublishBook_BrokerErrorSurfaces(t *testing.T) {
	broker := &fakeBroker{failNext: assert.AnError}
	p := newTestPublisher(broker, time.Second)
	book := writeBook(t, "only line\n")

	_, err := p.PublishBook(t.Context(), "http://example.com/1.zip", book)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFlush_AllAcked(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, time.Second)
	book := writeBook(t, "one\ntwo\n")

	_, err := p.PublishBook(t.Context(), "http://example.com/1.zip", book)
	require.NoError(t, err)

	broker.settle(nil)
	failures := p.Flush(t.Context())
	assert.Empty(t, failures)
}

func TestFlush_NackDegradesTask(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, time.Second)

	_, err := p.PublishBook(t.Context(), "http://example.com/1.zip", writeBook(t, "a\nb\n"))
	require.NoError(t, err)
	_, err = p.PublishBook(t.Context(), "http://example.com/2.zip", writeBook(t, "c\n"))
	require.NoError(t, err)

	// Second message of the first task is rejected.
	broker.settle(map[int]error{1: queue.ErrNacked})

	failures := p.Flush(t.Context())
	require.Len(t, failures, 1)
	assert.Equal(t, "http://example.com/1.zip", failures[0].URL)
	assert.ErrorIs(t, failures[0].Err, queue.ErrNacked)
}

func TestFlush_TimeoutMarksUnconfirmed(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, 50*time.Millisecond)

	_, err := p.PublishBook(t.Context(), "http://example.com/slow.zip", writeBook(t, "line\n"))
	require.NoError(t, err)

	// Never settle: the broker ack never arrives.
	failures := p.Flush(t.Context())

	require.Len(t, failures, 1)
	assert.Equal(t, "http://example.com/slow.zip", failures[0].URL)
	assert.ErrorIs(t, failures[0].Err, context.DeadlineExceeded)
}

func TestFlush_SecondFlushIsEmpty(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker, 50*time.Millisecond)

	_, err := p.PublishBook(t.Context(), "http://example.com/1.zip", writeBook(t, "line\n"))
	require.NoError(t, err)

	broker.settle(nil)
	require.Empty(t, p.Flush(t.Context()))
	assert.Empty(t, p.Flush(t.Context()))
}
