// Package events provides the append-only notification stream of the
// marketplace. The core emits records for external observers (indexers,
// front-ends) and never reads them back or blocks on their delivery.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
)

// Kind classifies a notification record.
type Kind string

const (
	KindMinted            Kind = "minted"
	KindListed            Kind = "listed"
	KindSold              Kind = "sold"
	KindCancelled         Kind = "cancelled"
	KindFeeUpdated        Kind = "fee_updated"
	KindTreasuryWithdrawn Kind = "treasury_withdrawn"
	KindRefundOwed        Kind = "refund_owed"
	KindRefundDelivered   Kind = "refund_delivered"
)

// Record is a single notification. Core fields identify the listing and
// asset; operation-specific values (price, fee rate, counterparty) travel in
// Attrs as decimal strings so records survive any storage backend unchanged.
type Record struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	ListingID uint64            `json:"listing_id,omitempty"`
	AssetID   uint64            `json:"asset_id,omitempty"`
	Actor     asset.Account     `json:"actor,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Handler consumes records as they are appended.
type Handler func(Record)

// Sink is where the core publishes notifications.
type Sink interface {
	Append(Record)
}

// Log is a bounded in-memory notification stream. Appends never fail and
// never block the appender beyond handler dispatch; when the buffer wraps,
// the oldest records fall off.
type Log struct {
	mu       sync.RWMutex
	records  []Record
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

var _ Sink = (*Log)(nil)

// NewLog creates a notification log retaining up to size records.
func NewLog(size int) *Log {
	if size <= 0 {
		size = 1024
	}
	return &Log{
		records: make([]Record, size),
		size:    size,
	}
}

// Append stamps and stores the record, then notifies subscribers. Handlers
// run outside the lock so a subscriber cannot wedge the appender.
func (l *Log) Append(rec Record) {
	l.mu.Lock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	l.records[l.head] = rec
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}

	handlers := make([]handlerEntry, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h.handler(rec)
	}
}

// Subscribe registers a handler for every appended record and returns an
// unsubscribe function.
func (l *Log) Subscribe(handler Handler) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers = append(l.handlers, handlerEntry{id: id, handler: handler})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, h := range l.handlers {
			if h.id == id {
				l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n records, newest first.
func (l *Log) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	result := make([]Record, n)
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + l.size) % l.size
		result[i] = l.records[idx]
	}
	return result
}

// RecentByKind returns up to n records of one kind, newest first.
func (l *Log) RecentByKind(kind Kind, n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}

	var result []Record
	for i := 0; i < l.count && len(result) < n; i++ {
		idx := (l.head - 1 - i + l.size) % l.size
		if l.records[idx].Kind == kind {
			result = append(result, l.records[idx])
		}
	}
	return result
}

// Count returns the number of retained records.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// NopSink discards every record. Used where a caller opts out of
// notifications entirely.
type NopSink struct{}

func (NopSink) Append(Record) {}
