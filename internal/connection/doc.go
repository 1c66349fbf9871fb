// Package connection maintains the push feed websocket.
//
// The Client owns one socket: it answers server pings, sends its own ping on
// an interval, and forwards binary frames. The Manager keeps a Client alive
// for the life of the process:
//   - reconnects after a cooldown with exponential backoff
//   - tracks every subscribed channel and replays them on reconnect
//   - forwards frames to a bounded channel, blocking the socket read while
//     it is full
package connection
