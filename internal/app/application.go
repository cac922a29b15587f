// Package app wires the marketplace service, its collaborators, and the
// lifecycle-managed background modules into one runnable unit.
package app

import (
	"context"
	"fmt"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/auth"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/payments"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/registry"
	marketsvc "github.com/Ayush4178/NFT-Marketplace/internal/app/services/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/memory"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/system"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Listings storage.ListingStore
	Fees     storage.FeeStore
	Treasury storage.TreasuryStore
	Events   storage.EventStore
}

// Options carries the deployment accounts and optional collaborator
// overrides. Nil collaborators default to the in-process implementations.
type Options struct {
	Admin    asset.Account
	Escrow   asset.Account
	Registry registry.Registry
	Payments payments.Channel
}

// Application ties the marketplace together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Market        *marketsvc.Service
	Registry      registry.Registry
	Ledger        *registry.Ledger // nil when an external registry is injected
	Payments      payments.Channel
	Notifications *events.Log
	Journal       storage.EventStore
	Admin         asset.Account
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Admin == "" {
		opts.Admin = "admin"
	}

	mem := memory.New()
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Fees == nil {
		stores.Fees = mem
	}
	if stores.Treasury == nil {
		stores.Treasury = mem
	}
	if stores.Events == nil {
		stores.Events = mem
	}

	var ledger *registry.Ledger
	if opts.Registry == nil {
		ledger = registry.NewLedger()
		opts.Registry = ledger
	}
	if opts.Payments == nil {
		opts.Payments = payments.NewLedger()
	}

	notifications := events.NewLog(1024)

	market, err := marketsvc.New(marketsvc.Deps{
		Listings: stores.Listings,
		Fees:     stores.Fees,
		Treasury: stores.Treasury,
		Registry: opts.Registry,
		Auth:     auth.NewStaticAdmin(opts.Admin),
		Payments: opts.Payments,
		Events:   notifications,
		Escrow:   opts.Escrow,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build market service: %w", err)
	}

	manager := system.NewManager()
	archiver := marketsvc.NewArchiver(notifications, stores.Events, log)
	if err := manager.Register(archiver); err != nil {
		return nil, fmt.Errorf("register %s: %w", archiver.Name(), err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		Market:        market,
		Registry:      opts.Registry,
		Ledger:        ledger,
		Payments:      opts.Payments,
		Notifications: notifications,
		Journal:       stores.Events,
		Admin:         opts.Admin,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
