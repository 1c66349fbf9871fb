// Package bus fans change events out to many concurrent subscribers.
//
// There is one typed Topic per event category. Publishing never blocks the
// producer. Each subscriber reads through its own Cursor into a bounded ring;
// a subscriber that falls more than a ring's worth behind loses the oldest
// unread events and continues from the oldest one still held. Delivery is
// therefore at most once, and lossy under lag. This is intended: publishers
// are never slowed by readers, and readers must not assume they see every
// event.
package bus

import (
	"github.com/rickgao/marketsync/internal/model"
)

// Category names an event stream.
type Category string

const (
	CategoryListings  Category = "listings"
	CategorySales     Category = "sales"
	CategoryOwnership Category = "ownership"
	CategoryAlerts    Category = "alerts"
)

// Config sets the ring capacity of each topic.
type Config struct {
	ListingsCapacity  int
	SalesCapacity     int
	OwnershipCapacity int
	AlertsCapacity    int
}

// DefaultConfig returns default capacities.
func DefaultConfig() Config {
	return Config{
		ListingsCapacity:  100,
		SalesCapacity:     40,
		OwnershipCapacity: 10,
		AlertsCapacity:    10,
	}
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	onDrop func(topic string, n uint64)
}

// WithDropHook registers fn to be called whenever a lagging cursor skips
// events. fn runs on the reader's goroutine and must be cheap.
func WithDropHook(fn func(topic string, n uint64)) Option {
	return func(o *options) { o.onDrop = fn }
}

// Bus holds one topic per category. Construct one per process and hand its
// topics to producers and subscribers.
type Bus struct {
	Listings  *Topic[model.ChangeEvent[model.ListingBatch]]
	Sales     *Topic[model.ChangeEvent[model.SaleBatch]]
	Ownership *Topic[model.ChangeEvent[model.RetainerIdentity]]
	Alerts    *Topic[model.ChangeEvent[model.Alert]]
}

// New creates a Bus.
func New(cfg Config, opts ...Option) *Bus {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bus{
		Listings:  NewTopic[model.ChangeEvent[model.ListingBatch]](string(CategoryListings), cfg.ListingsCapacity),
		Sales:     NewTopic[model.ChangeEvent[model.SaleBatch]](string(CategorySales), cfg.SalesCapacity),
		Ownership: NewTopic[model.ChangeEvent[model.RetainerIdentity]](string(CategoryOwnership), cfg.OwnershipCapacity),
		Alerts:    NewTopic[model.ChangeEvent[model.Alert]](string(CategoryAlerts), cfg.AlertsCapacity),
	}
	b.Listings.onDrop = o.onDrop
	b.Sales.onDrop = o.onDrop
	b.Ownership.onDrop = o.onDrop
	b.Alerts.onDrop = o.onDrop
	return b
}

// Close closes every topic.
func (b *Bus) Close() {
	b.Listings.Close()
	b.Sales.Close()
	b.Ownership.Close()
	b.Alerts.Close()
}

// Stats returns per-category statistics.
func (b *Bus) Stats() map[Category]TopicStats {
	return map[Category]TopicStats{
		CategoryListings:  b.Listings.Stats(),
		CategorySales:     b.Sales.Stats(),
		CategoryOwnership: b.Ownership.Stats(),
		CategoryAlerts:    b.Alerts.Stats(),
	}
}
