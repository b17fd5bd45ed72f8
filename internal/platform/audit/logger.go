package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Logger records audit events best-effort: a failed write is logged
// internally and never surfaces to the action being audited. Writes flow
// through a single background goroutine so insertion order matches the
// order callers enqueued events.
type Logger struct {
	repo *Repository

	queue  chan *Entry
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func NewLogger(repo *Repository, queueSize int) *Logger {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := &Logger{
		repo:  repo,
		queue: make(chan *Entry, queueSize),
		done:  make(chan struct{}),
	}
	go l.writeLoop()
	return l
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for entry := range l.queue {
		if err := l.repo.Insert(entry); err != nil {
			log.Error().Err(err).
				Str("action", string(entry.Action)).
				Str("performed_by", entry.PerformedBy).
				Msg("audit write failed")
		}
	}
}

// Record enqueues an audit entry. The ctx is accepted for symmetry with
// the rest of the core but the write itself outlives the request.
func (l *Logger) Record(ctx context.Context, event Event) {
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	entry := &Entry{
		ID:           "audit_" + uuid.New().String(),
		Action:       event.Action,
		PerformedBy:  event.PerformedBy,
		TargetUserID: event.TargetUserID,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Description:  event.Description,
		Metadata:     event.Metadata,
		CreatedAt:    time.Now().Unix(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.insertDirect(entry)
		return
	}

	// Enqueues are serialized under mu, so the writer goroutine sees
	// events in the order callers recorded them. A full queue blocks
	// briefly rather than reordering or dropping the event.
	l.queue <- entry
}

func (l *Logger) insertDirect(entry *Entry) {
	if err := l.repo.Insert(entry); err != nil {
		log.Error().Err(err).Str("action", string(entry.Action)).Msg("audit write failed")
	}
}

func (l *Logger) Query(filters Filters) (*Page, error) {
	return l.repo.Query(filters)
}

func (l *Logger) Stats(from, to int64) (*Stats, error) {
	return l.repo.Stats(from, to)
}

// Close drains pending writes. Called once on shutdown.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}
