package model

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

// Key identifies one market board: a single item on a single world.
type Key struct {
	WorldID int32
	ItemID  int32
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.WorldID, k.ItemID)
}

// -----------------------------------------------------------------------------
// Identities
// -----------------------------------------------------------------------------

// RetainerIdentity is a seller as known to the store.
type RetainerIdentity struct {
	ID         int64  `json:"id" cbor:"id"`                   // Store surrogate key
	Name       string `json:"name" cbor:"name"`               // Display name (unique per world)
	WorldID    int32  `json:"world_id" cbor:"world_id"`       // Home world
	ExternalID string `json:"external_id" cbor:"external_id"` // Upstream retainer id, may be empty
}

// BuyerIdentity is a purchasing character as known to the store.
type BuyerIdentity struct {
	ID   int64  `json:"id" cbor:"id"`
	Name string `json:"name" cbor:"name"` // Unique
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

// Listing is a stored market board listing.
type Listing struct {
	ID           int64  `json:"id" cbor:"id"`                       // Store surrogate key (0 before insert)
	WorldID      int32  `json:"world_id" cbor:"world_id"`           // World the listing is posted on
	ItemID       int32  `json:"item_id" cbor:"item_id"`             // Item being sold
	RetainerID   int64  `json:"retainer_id" cbor:"retainer_id"`     // Foreign key to RetainerIdentity
	RetainerName string `json:"retainer_name" cbor:"retainer_name"` // Denormalized from RetainerIdentity
	PricePerUnit int32  `json:"price_per_unit" cbor:"price_per_unit"`
	Quantity     int32  `json:"quantity" cbor:"quantity"`
	HQ           bool   `json:"hq" cbor:"hq"`
	ObservedAt   int64  `json:"observed_at" cbor:"observed_at"` // µs since epoch
}

// ListingSnapshot is one live listing as reported upstream, before retainer
// resolution.
type ListingSnapshot struct {
	RetainerName       string
	RetainerExternalID string
	PricePerUnit       int32
	Quantity           int32
	HQ                 bool
	ReviewedAt         int64 // µs since epoch, 0 if unknown
}

// ListingIdentity is the tuple two listings are compared by when diffing.
type ListingIdentity struct {
	PricePerUnit int32
	Quantity     int32
	RetainerName string
}

// Identity returns the diff identity of a stored listing.
func (l Listing) Identity() ListingIdentity {
	return ListingIdentity{PricePerUnit: l.PricePerUnit, Quantity: l.Quantity, RetainerName: l.RetainerName}
}

// Identity returns the diff identity of an upstream listing.
func (s ListingSnapshot) Identity() ListingIdentity {
	return ListingIdentity{PricePerUnit: s.PricePerUnit, Quantity: s.Quantity, RetainerName: s.RetainerName}
}

// Compare orders identities by price, then quantity, then retainer name.
func (a ListingIdentity) Compare(b ListingIdentity) int {
	switch {
	case a.PricePerUnit < b.PricePerUnit:
		return -1
	case a.PricePerUnit > b.PricePerUnit:
		return 1
	case a.Quantity < b.Quantity:
		return -1
	case a.Quantity > b.Quantity:
		return 1
	case a.RetainerName < b.RetainerName:
		return -1
	case a.RetainerName > b.RetainerName:
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// Sales
// -----------------------------------------------------------------------------

// Sale is a stored completed purchase.
type Sale struct {
	ID           int64  `json:"id" cbor:"id"`
	WorldID      int32  `json:"world_id" cbor:"world_id"`
	ItemID       int32  `json:"item_id" cbor:"item_id"`
	BuyerID      int64  `json:"buyer_id" cbor:"buyer_id"`
	BuyerName    string `json:"buyer_name" cbor:"buyer_name"`
	PricePerUnit int32  `json:"price_per_unit" cbor:"price_per_unit"`
	Quantity     int32  `json:"quantity" cbor:"quantity"`
	HQ           bool   `json:"hq" cbor:"hq"`
	SoldAt       int64  `json:"sold_at" cbor:"sold_at"` // µs since epoch
}

// SaleSnapshot is one sale as reported upstream, before buyer resolution.
type SaleSnapshot struct {
	BuyerName    string
	PricePerUnit int32
	Quantity     int32
	HQ           bool
	SoldAt       int64 // µs since epoch
}

// SaleIdentity is the tuple sales are deduplicated by.
type SaleIdentity struct {
	HQ        bool
	BuyerName string
	Quantity  int32
	SoldAtSec int64 // sold_at truncated to whole seconds
}

// Identity returns the dedup identity of a stored sale.
func (s Sale) Identity() SaleIdentity {
	return SaleIdentity{HQ: s.HQ, BuyerName: s.BuyerName, Quantity: s.Quantity, SoldAtSec: truncateSeconds(s.SoldAt)}
}

// Identity returns the dedup identity of an upstream sale.
func (s SaleSnapshot) Identity() SaleIdentity {
	return SaleIdentity{HQ: s.HQ, BuyerName: s.BuyerName, Quantity: s.Quantity, SoldAtSec: truncateSeconds(s.SoldAt)}
}

func truncateSeconds(us int64) int64 {
	sec := us / int64(time.Second/time.Microsecond)
	if us < 0 && us%int64(time.Second/time.Microsecond) != 0 {
		sec--
	}
	return sec
}

// -----------------------------------------------------------------------------
// Recency
// -----------------------------------------------------------------------------

// RecencyRecord tracks when a market board was last reconciled locally.
type RecencyRecord struct {
	WorldID         int32
	ItemID          int32
	LastKnownUpdate int64 // µs since epoch
}

// RecentItem is an upstream "recently touched" report for one market board.
type RecentItem struct {
	WorldID    int32
	ItemID     int32
	UploadedAt int64 // µs since epoch
}

// -----------------------------------------------------------------------------
// Change Events
// -----------------------------------------------------------------------------

// ChangeKind tags a ChangeEvent.
type ChangeKind uint8

const (
	Added ChangeKind = iota + 1
	Removed
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its lowercase name.
func (k ChangeKind) MarshalText() ([]byte, error) {
	if k < Added || k > Updated {
		return nil, fmt.Errorf("invalid change kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a lowercase kind name.
func (k *ChangeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "added":
		*k = Added
	case "removed":
		*k = Removed
	case "updated":
		*k = Updated
	default:
		return fmt.Errorf("invalid change kind %q", b)
	}
	return nil
}

// ChangeEvent is the unit moved by the event bus.
type ChangeEvent[T any] struct {
	Kind ChangeKind
	Data T
}

// ListingBatch is the set of listings affected by one change on one board.
type ListingBatch struct {
	ItemID   int32     `json:"item_id" cbor:"item_id"`
	WorldID  int32     `json:"world_id" cbor:"world_id"`
	Listings []Listing `json:"listings" cbor:"listings"`
}

// SaleBatch is the set of sales recorded by one change on one board.
type SaleBatch struct {
	ItemID  int32  `json:"item_id" cbor:"item_id"`
	WorldID int32  `json:"world_id" cbor:"world_id"`
	Sales   []Sale `json:"sales" cbor:"sales"`
}

// Alert reports a board whose lowest asking price dropped.
type Alert struct {
	WorldID       int32
	ItemID        int32
	RetainerName  string // Seller of the new lowest listing
	PreviousFloor int32
	Floor         int32
}
