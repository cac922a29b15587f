package market

import (
	"context"
	"testing"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/memory"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

func TestArchiverPersistsNotifications(t *testing.T) {
	source := events.NewLog(64)
	store := memory.New()
	arch := NewArchiver(source, store, logger.NewDefault("archiver-test"))

	ctx := context.Background()
	if err := arch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	source.Append(events.Record{Kind: events.KindListed, ListingID: 1, AssetID: 7})
	source.Append(events.Record{Kind: events.KindSold, ListingID: 1, AssetID: 7})

	// Stop drains the queue before returning.
	if err := arch.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	recs, err := store.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 archived records, got %d", len(recs))
	}
	// newest first
	if recs[0].Kind != events.KindSold || recs[1].Kind != events.KindListed {
		t.Errorf("unexpected journal order: %s, %s", recs[0].Kind, recs[1].Kind)
	}
}

func TestArchiverIgnoresRecordsAfterStop(t *testing.T) {
	source := events.NewLog(64)
	store := memory.New()
	arch := NewArchiver(source, store, logger.NewDefault("archiver-test"))

	ctx := context.Background()
	if err := arch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := arch.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	source.Append(events.Record{Kind: events.KindListed, ListingID: 1})
	time.Sleep(20 * time.Millisecond)

	recs, err := store.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records after stop, got %d", len(recs))
	}
}

func TestArchiverStartStopIdempotent(t *testing.T) {
	source := events.NewLog(8)
	arch := NewArchiver(source, memory.New(), nil)

	ctx := context.Background()
	if err := arch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := arch.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := arch.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := arch.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
