// Package realtime serves filtered change events to websocket subscribers.
//
// A client connects, receives {"type":"connected","session":...}, then sends
// add_subscribe frames carrying a predicate and a category. Every listing or
// sale batch published on the event bus is filtered row by row against the
// client's predicate and sent if anything survives. A client that falls
// behind the bus is told how many events it missed with a "lagged" frame.
//
// Text frames carry JSON. A client that sends binary frames is answered in
// CBOR from then on.
package realtime
