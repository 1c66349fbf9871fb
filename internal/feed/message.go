package feed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/rickgao/marketsync/internal/model"
)

// Errors
var (
	ErrUnknownEvent   = errors.New("feed: unknown event")
	ErrInvalidChannel = errors.New("feed: invalid channel")
)

// Event tags a push frame.
type Event string

const (
	EventListingsAdd    Event = "listings/add"
	EventListingsRemove Event = "listings/remove"
	EventSalesAdd       Event = "sales/add"
	EventSalesRemove    Event = "sales/remove"
)

// Events lists every data event in subscription order.
var Events = []Event{EventListingsAdd, EventListingsRemove, EventSalesAdd, EventSalesRemove}

// Valid reports whether e is one of the four data events.
func (e Event) Valid() bool {
	switch e {
	case EventListingsAdd, EventListingsRemove, EventSalesAdd, EventSalesRemove:
		return true
	}
	return false
}

// Message is one decoded data frame. Listings is set for listing events and
// Sales for sale events.
type Message struct {
	Event    Event     `bson:"event"`
	ItemID   int32     `bson:"item"`
	WorldID  int32     `bson:"world"`
	Listings []Listing `bson:"listings,omitempty"`
	Sales    []Sale    `bson:"sales,omitempty"`
}

// Key returns the board the message is about.
func (m *Message) Key() model.Key {
	return model.Key{WorldID: m.WorldID, ItemID: m.ItemID}
}

// ListingSnapshots converts the message's listings.
func (m *Message) ListingSnapshots() []model.ListingSnapshot {
	out := make([]model.ListingSnapshot, len(m.Listings))
	for i := range m.Listings {
		out[i] = m.Listings[i].ToSnapshot()
	}
	return out
}

// SaleSnapshots converts the message's sales.
func (m *Message) SaleSnapshots() []model.SaleSnapshot {
	out := make([]model.SaleSnapshot, len(m.Sales))
	for i := range m.Sales {
		out[i] = m.Sales[i].ToSnapshot()
	}
	return out
}

// Listing is a listing as carried on the push socket. The upstream listing id
// changes type between releases and is not decoded.
type Listing struct {
	PricePerUnit   int32     `bson:"pricePerUnit"`
	Quantity       int32     `bson:"quantity"`
	HQ             bool      `bson:"hq"`
	RetainerName   string    `bson:"retainerName"`
	RetainerID     string    `bson:"retainerID"`
	RetainerCity   int32     `bson:"retainerCity"`
	LastReviewTime Timestamp `bson:"lastReviewTime"`
	SellerID       string    `bson:"sellerID"`
	OnMannequin    bool      `bson:"onMannequin"`
	CreatorName    string    `bson:"creatorName"`
	Total          int64     `bson:"total"`
	Tax            int64     `bson:"tax"`
}

// ToSnapshot converts a Listing to a model.ListingSnapshot.
func (l *Listing) ToSnapshot() model.ListingSnapshot {
	return model.ListingSnapshot{
		RetainerName:       l.RetainerName,
		RetainerExternalID: l.RetainerID,
		PricePerUnit:       l.PricePerUnit,
		Quantity:           l.Quantity,
		HQ:                 l.HQ,
		ReviewedAt:         l.LastReviewTime.Micro(),
	}
}

// Sale is a completed sale as carried on the push socket.
type Sale struct {
	HQ           bool      `bson:"hq"`
	PricePerUnit int32     `bson:"pricePerUnit"`
	Quantity     int32     `bson:"quantity"`
	Timestamp    Timestamp `bson:"timestamp"`
	OnMannequin  bool      `bson:"onMannequin"`
	BuyerName    string    `bson:"buyerName"`
	WorldID      int32     `bson:"worldID,omitempty"`
	WorldName    string    `bson:"worldName,omitempty"`
	Total        int64     `bson:"total"`
}

// ToSnapshot converts a Sale to a model.SaleSnapshot.
func (s *Sale) ToSnapshot() model.SaleSnapshot {
	return model.SaleSnapshot{
		BuyerName:    s.BuyerName,
		PricePerUnit: s.PricePerUnit,
		Quantity:     s.Quantity,
		HQ:           s.HQ,
		SoldAt:       s.Timestamp.Micro(),
	}
}

// Timestamp is a Unix time in seconds. Upstream sends it as an int32, int64,
// double or numeric string depending on the producer, so decoding accepts
// all four.
type Timestamp int64

// Micro returns the time in microseconds since epoch, 0 if unset.
func (t Timestamp) Micro() int64 {
	if t <= 0 {
		return 0
	}
	return int64(t) * 1_000_000
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (t Timestamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(int64(t))
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (t *Timestamp) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: typ, Value: data}
	switch typ {
	case bsontype.Int32:
		*t = Timestamp(rv.Int32())
	case bsontype.Int64:
		*t = Timestamp(rv.Int64())
	case bsontype.Double:
		f := rv.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("timestamp: non-finite value %v", f)
		}
		*t = Timestamp(int64(f))
	case bsontype.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.StringValue()), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = Timestamp(n)
	case bsontype.Null, bsontype.Undefined:
		*t = 0
	default:
		return fmt.Errorf("timestamp: cannot decode %s", typ)
	}
	return nil
}

// Decode parses one binary data frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := bson.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if !m.Event.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, m.Event)
	}
	return m, nil
}

// Encode serializes a data frame. The engine only decodes these; Encode
// exists for fakes and replay tooling.
func Encode(m Message) ([]byte, error) {
	if !m.Event.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, m.Event)
	}
	return bson.Marshal(m)
}

// -----------------------------------------------------------------------------
// Channels and control frames
// -----------------------------------------------------------------------------

// Channel is a subscribable event stream, optionally narrowed to one world.
type Channel struct {
	Event   Event
	WorldID int32 // 0 subscribes to every world
}

// String renders the channel in wire form, e.g. "listings/add{world=73}".
func (c Channel) String() string {
	if c.WorldID == 0 {
		return string(c.Event)
	}
	return fmt.Sprintf("%s{world=%d}", c.Event, c.WorldID)
}

// ParseChannel parses the wire form produced by Channel.String.
func ParseChannel(s string) (Channel, error) {
	event, filter, hasFilter := strings.Cut(s, "{")
	c := Channel{Event: Event(event)}
	if !c.Event.Valid() {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	if !hasFilter {
		return c, nil
	}

	filter, ok := strings.CutSuffix(filter, "}")
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	v, ok := strings.CutPrefix(filter, "world=")
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	id, err := strconv.ParseInt(v, 10, 32)
	if err != nil || id <= 0 {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	c.WorldID = int32(id)
	return c, nil
}

// ChannelsFor returns one channel per event for each world, or one per event
// when worlds is empty.
func ChannelsFor(worlds []int32) []Channel {
	if len(worlds) == 0 {
		out := make([]Channel, len(Events))
		for i, e := range Events {
			out[i] = Channel{Event: e}
		}
		return out
	}
	out := make([]Channel, 0, len(Events)*len(worlds))
	for _, e := range Events {
		for _, w := range worlds {
			out = append(out, Channel{Event: e, WorldID: w})
		}
	}
	return out
}

// Mode is the action of a control frame.
type Mode string

const (
	ModeSubscribe   Mode = "subscribe"
	ModeUnsubscribe Mode = "unsubscribe"
)

// Control is a subscription update sent to the push socket.
type Control struct {
	Mode    Mode
	Channel Channel
}

type controlWire struct {
	Event   string `bson:"event"`
	Channel string `bson:"channel"`
}

// EncodeControl serializes a control frame.
func EncodeControl(c Control) ([]byte, error) {
	if c.Mode != ModeSubscribe && c.Mode != ModeUnsubscribe {
		return nil, fmt.Errorf("feed: invalid control mode %q", c.Mode)
	}
	return bson.Marshal(controlWire{Event: string(c.Mode), Channel: c.Channel.String()})
}

// DecodeControl parses a control frame.
func DecodeControl(data []byte) (Control, error) {
	var w controlWire
	if err := bson.Unmarshal(data, &w); err != nil {
		return Control{}, fmt.Errorf("decode control: %w", err)
	}
	mode := Mode(w.Event)
	if mode != ModeSubscribe && mode != ModeUnsubscribe {
		return Control{}, fmt.Errorf("feed: invalid control mode %q", w.Event)
	}
	ch, err := ParseChannel(w.Channel)
	if err != nil {
		return Control{}, err
	}
	return Control{Mode: mode, Channel: ch}, nil
}
