package realtime

import (
	"errors"
	"fmt"

	"github.com/rickgao/marketsync/internal/filter"
	"github.com/rickgao/marketsync/internal/model"
)

// ErrBadRequest is wrapped by errors reported to clients for rejected frames.
var ErrBadRequest = errors.New("bad request")

// MessageType tags every frame in both directions.
type MessageType string

const (
	// Client to server
	TypeAddSubscribe    MessageType = "add_subscribe"
	TypeRemoveSubscribe MessageType = "remove_subscribe"

	// Server to client
	TypeConnected           MessageType = "connected"
	TypeSubscriptionCreated MessageType = "subscription_created"
	TypeSubscriptionRemoved MessageType = "subscription_removed"
	TypeListings            MessageType = "listings"
	TypeSales               MessageType = "sales"
	TypeLagged              MessageType = "lagged"
	TypeError               MessageType = "error"
)

// Category selects which bus topic a subscription reads.
type Category string

const (
	CategoryListings Category = "listings"
	CategorySales    Category = "sales"
)

func (c Category) valid() bool {
	return c == CategoryListings || c == CategorySales
}

// ClientMessage is a control frame sent by a subscriber.
type ClientMessage struct {
	Type     MessageType  `json:"type" cbor:"type"`
	Category Category     `json:"category,omitempty" cbor:"category,omitempty"` // Defaults to listings
	Filter   *filter.Spec `json:"filter,omitempty" cbor:"filter,omitempty"`     // Nil matches everything
}

// ServerMessage is any frame sent to a subscriber. Fields not used by Type
// are omitted.
type ServerMessage struct {
	Type     MessageType      `json:"type" cbor:"type"`
	Session  string           `json:"session,omitempty" cbor:"session,omitempty"`
	Category Category         `json:"category,omitempty" cbor:"category,omitempty"`
	Change   model.ChangeKind `json:"change,omitempty" cbor:"change,omitempty"`
	Data     any              `json:"data,omitempty" cbor:"data,omitempty"`
	Skipped  uint64           `json:"skipped,omitempty" cbor:"skipped,omitempty"`
	Message  string           `json:"message,omitempty" cbor:"message,omitempty"`
}

// request is a validated ClientMessage.
type request struct {
	typ       MessageType
	category  Category
	predicate *filter.Predicate
}

func (m ClientMessage) validate() (request, error) {
	req := request{typ: m.Type, category: m.Category}
	if req.category == "" {
		req.category = CategoryListings
	}
	if !req.category.valid() {
		return request{}, fmt.Errorf("%w: unknown category %q", ErrBadRequest, m.Category)
	}

	switch m.Type {
	case TypeAddSubscribe:
		if m.Filter != nil {
			p, err := m.Filter.Build()
			if err != nil {
				return request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			req.predicate = p
		}
	case TypeRemoveSubscribe:
	default:
		return request{}, fmt.Errorf("%w: unknown message type %q", ErrBadRequest, m.Type)
	}
	return req, nil
}
