package market

import (
	"context"
	"sync"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/metrics"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/system"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

// Archiver drains the in-memory notification stream into the persistent
// event journal so external indexers can replay history across restarts.
// The subscription enqueue never blocks the emitting operation: if the
// archiver falls behind its buffer, records are dropped and counted.
type Archiver struct {
	source *events.Log
	store  storage.EventStore
	log    *logger.Logger
	buffer int

	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	running     bool
}

var _ system.Service = (*Archiver)(nil)

// NewArchiver creates an archiver reading from source and writing to store.
func NewArchiver(source *events.Log, store storage.EventStore, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.NewDefault("market-archiver")
	}
	return &Archiver{
		source: source,
		store:  store,
		log:    log,
		buffer: 256,
	}
}

func (a *Archiver) Name() string { return "market-archiver" }

func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.running = true

	queue := make(chan events.Record, a.buffer)
	a.unsubscribe = a.source.Subscribe(func(rec events.Record) {
		select {
		case queue <- rec:
		default:
			metrics.RecordJournalRecord("dropped")
			a.log.WithField("event_id", rec.ID).Warn("journal buffer full; notification dropped")
		}
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				// drain whatever is already queued before exiting
				for {
					select {
					case rec := <-queue:
						a.persist(rec)
					default:
						return
					}
				}
			case rec := <-queue:
				a.persist(rec)
			}
		}
	}()

	a.log.Info("event archiver started")
	return nil
}

func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel := a.cancel
	unsubscribe := a.unsubscribe
	a.running = false
	a.cancel = nil
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *Archiver) persist(rec events.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := a.store.AppendEvent(ctx, rec); err != nil {
		metrics.RecordJournalRecord("failed")
		a.log.WithError(err).WithField("event_id", rec.ID).Warn("archive notification failed")
		return
	}
	metrics.RecordJournalRecord("archived")
}
