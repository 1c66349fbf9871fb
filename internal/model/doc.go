// Package model defines shared data types used across marketsync.
//
// Conventions:
//   - Prices: integer gil per unit
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: int32 for game ids (worlds, items), int64 for store surrogate keys
package model
