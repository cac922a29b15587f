package app

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/system"
)

func TestNewDefaultsToInMemoryWiring(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if application.Market == nil {
		t.Fatal("market service should be wired")
	}
	if application.Ledger == nil {
		t.Error("in-process registry should be exposed when none is injected")
	}
	if application.Admin != "admin" {
		t.Errorf("default admin = %s", application.Admin)
	}
}

func TestFullFlowThroughApplication(t *testing.T) {
	application, err := New(Stores{}, Options{Admin: "admin", Escrow: "vault"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	a, err := application.Ledger.Mint(ctx, "alice", "ipfs://meta")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	lst, err := application.Market.List(ctx, "alice", a.ID, big.NewInt(1000))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := application.Market.Buy(ctx, lst.ID, "bob", big.NewInt(1000)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := application.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// the archiver drained the notification stream into the journal
	recs, err := application.Journal.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected listed and sold records in the journal, got %d", len(recs))
	}
	if recs[0].Kind != events.KindSold {
		t.Errorf("newest journal record = %s, want sold", recs[0].Kind)
	}
}

func TestAttachRejectsDuplicateService(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := application.Attach(system.NoopService{ServiceName: "extra"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := application.Attach(system.NoopService{ServiceName: "extra"}); err == nil {
		t.Error("expected duplicate attach to fail")
	}
}

type slowService struct {
	system.NoopService
}

func (slowService) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func TestStopHonoursContextDeadline(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := application.Attach(slowService{system.NoopService{ServiceName: "slow"}}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := application.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error from slow service, got %v", err)
	}
}
