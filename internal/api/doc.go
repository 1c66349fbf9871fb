// Package api provides the Universalis REST client used for snapshot pulls.
//
// Endpoints (relative to https://universalis.app/api/v2):
//   - /{worldOrDc}/{ids}: current listings and recent sales, up to 100 items
//   - /extra/stats/most-recently-updated: recently uploaded boards per world
//   - /data-centers, /worlds: the world hierarchy
//   - /marketable: every item id that can appear on a market board
//
// The push feed lives in internal/connection and internal/feed.
package api
