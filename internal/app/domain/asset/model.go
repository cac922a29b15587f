// Package asset defines the records tracked by the asset registry.
package asset

import "time"

// Account is an address-like identifier for a participant: sellers, buyers,
// the escrow holder, and the marketplace administrator.
type Account string

// Asset is a uniquely identified digital item. Ownership is tracked by the
// registry, not on the record itself; the metadata URI points at external
// content the core never interprets.
type Asset struct {
	ID          uint64
	MetadataURI string
	CreatedAt   time.Time
}
