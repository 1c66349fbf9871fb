// Package recency finds market boards that changed upstream without a push
// feed message reaching us, and re-snapshots them.
//
// The Detector:
//   - Asks the snapshot API which items were updated recently, per region
//   - Compares the item ids against the local recency records
//   - Pulls the missing items in batches and hands them to a SnapshotHandler
//   - Runs an optional full sweep of every marketable item on a cron schedule
//
// The comparison is by item id only. An item recently reconciled on one world
// of a region hides a missed update of the same item on another world of that
// region until the next full sweep.
package recency
